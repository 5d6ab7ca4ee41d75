package scraper

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewOptionsAcceptsHTTPAndHTTPS(t *testing.T) {
	for _, location := range []string{
		"http://example.com/page",
		"https://example.com/some/path?q=1",
		// Whole-script IDN whose label is not built purely from Latin
		// lookalikes.
		"https://почта.ru/",
	} {
		if _, err := NewOptions(location); err != nil {
			t.Errorf("NewOptions(%q) failed: %v", location, err)
		}
	}
}

func TestNewOptionsRejectsBadURLs(t *testing.T) {
	cases := []struct {
		name     string
		location string
	}{
		{"empty", ""},
		{"scheme", "ftp://example.com/file"},
		{"no scheme", "example.com/page"},
		{"no host", "https:///page"},
		{"unparseable", "https://exa mple.com/%%zz"},
		{"image extension", "https://example.com/photo.jpg"},
		{"archive extension", "https://example.com/bundle.zip"},
		{"video extension", "https://example.com/clip.MP4"},
		{"confusable cyrillic host", "https://аррӏе.com/"},
		{"mixed-script label", "https://pаypal.com/login"},
		{"confusable punycode", "https://xn--80ak6aa92e.com/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOptions(tc.location)
			if err == nil {
				t.Fatalf("NewOptions(%q) should have been rejected", tc.location)
			}
			if !errors.Is(err, ErrInvalidURL) {
				t.Fatalf("expected ErrInvalidURL, got %v", err)
			}
		})
	}
}

func TestSetLocationRevalidates(t *testing.T) {
	o, err := NewOptions("https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.SetLocation("https://example.com/other"); err != nil {
		t.Fatalf("valid relocation failed: %v", err)
	}
	if err := o.SetLocation("https://example.com/asset.png"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if got := o.Location().Path; got != "/other" {
		t.Fatalf("rejected relocation must not replace the target, have path %q", got)
	}
}

func TestNumericBounds(t *testing.T) {
	o, err := NewOptions("https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := o.SetMaxBytes(-1); err == nil {
		t.Error("negative max bytes should fail")
	}
	if err := o.SetMaxBytes(MaxByteBudget + 1); err == nil {
		t.Error("max bytes above the ceiling should fail")
	}
	if err := o.SetMaxBytes(0); err != nil {
		t.Errorf("zero max bytes selects the default and should pass: %v", err)
	}
	if got := o.request().MaxBytes; got != MaxByteBudget {
		t.Errorf("zero max bytes should resolve to %d, got %d", MaxByteBudget, got)
	}

	if err := o.SetChunkBufferSize(-1); err == nil {
		t.Error("negative chunk buffer size should fail")
	}
	if err := o.SetTimeout(time.Millisecond); err == nil {
		t.Error("timeout below 2ms should fail")
	}
	if err := o.SetTimeout(2 * time.Millisecond); err != nil {
		t.Errorf("2ms timeout should pass: %v", err)
	}
	for _, n := range []int{0, 5} {
		if err := o.SetMaxRedirects(n); err == nil {
			t.Errorf("max redirects %d should fail", n)
		}
	}
	for n := 1; n <= 4; n++ {
		if err := o.SetMaxRedirects(n); err != nil {
			t.Errorf("max redirects %d should pass: %v", n, err)
		}
	}
}

func TestParseHeaderBlock(t *testing.T) {
	headers, err := ParseHeaderBlock("x-foo: 123\nx-bar:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers["x-foo"] != "123" || headers["x-bar"] != "abc" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestParseHeaderBlockWhitelist(t *testing.T) {
	valid := "Cookie: a=b\nAuthorization: Bearer t\naccept: text/html\nX-Custom-Thing: 1"
	headers, err := ParseHeaderBlock(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(headers) != 4 {
		t.Fatalf("expected 4 headers, got %v", headers)
	}
}

func TestParseHeaderBlockRejectsMalformedLine(t *testing.T) {
	cases := []string{
		"x-foo: 1\nbaz: 666",
		"no colon here",
		": empty-name",
	}
	for _, raw := range cases {
		_, err := ParseHeaderBlock(raw)
		if err == nil {
			t.Errorf("ParseHeaderBlock(%q) should have failed", raw)
			continue
		}
		// The error must name the offending line.
		offending := raw[strings.LastIndexByte(raw, '\n')+1:]
		if !strings.Contains(err.Error(), offending) {
			t.Errorf("error %q does not name the offending line %q", err, offending)
		}
	}
}

func TestTitleBudgetForVideoHosts(t *testing.T) {
	if got := titleBudgetFor("www.youtube.com"); got != titleBudgetVideoHost {
		t.Errorf("youtube should use the video budget, got %d", got)
	}
	if got := titleBudgetFor("example.com"); got != titleBudget {
		t.Errorf("regular host should use the default budget, got %d", got)
	}
}
