package scanner

import (
	"strings"
	"testing"
)

// runChunks feeds the document in the given chunk size and finishes the
// stream if no terminal outcome occurred first.
func runChunks(t *testing.T, s *Scanner, doc string, chunkSize int) string {
	t.Helper()
	for i := 0; i < len(doc); i += chunkSize {
		end := i + chunkSize
		if end > len(doc) {
			end = len(doc)
		}
		if s.Feed([]byte(doc[i:end])) == Done {
			return string(s.Output())
		}
	}
	s.Finish()
	return string(s.Output())
}

func TestStartStopExtraction(t *testing.T) {
	doc := "<html><body><p>before</p><main>wanted fragment</main><p>after</p></body></html>"

	cases := []struct {
		name                      string
		includeStart, includeStop bool
		want                      string
	}{
		{"excluded-excluded", false, false, "wanted fragment"},
		{"included-excluded", true, false, "<main>wanted fragment"},
		{"excluded-included", false, true, "wanted fragment</main>"},
		{"included-included", true, true, "<main>wanted fragment</main>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(Config{
				StartToken:    []byte("<main>"),
				StartIncluded: tc.includeStart,
				StopToken:     []byte("</main>"),
				StopIncluded:  tc.includeStop,
				MaxBytes:      1 << 20,
			})
			got := runChunks(t, s, doc, 7)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenInclusionSymmetry(t *testing.T) {
	doc := "junk<main>payload</main>junk"
	outputs := map[[2]bool]string{}
	for _, incStart := range []bool{false, true} {
		for _, incStop := range []bool{false, true} {
			s := New(Config{
				StartToken:    []byte("<main>"),
				StartIncluded: incStart,
				StopToken:     []byte("</main>"),
				StopIncluded:  incStop,
				MaxBytes:      1 << 20,
			})
			outputs[[2]bool{incStart, incStop}] = runChunks(t, s, doc, 3)
		}
	}
	if got := "<main>" + outputs[[2]bool{false, false}]; got != outputs[[2]bool{true, false}] {
		t.Fatalf("start token prepended to excluded output %q does not match included output %q",
			got, outputs[[2]bool{true, false}])
	}
	if got := outputs[[2]bool{false, false}] + "</main>"; got != outputs[[2]bool{false, true}] {
		t.Fatalf("stop token appended to excluded output %q does not match included output %q",
			got, outputs[[2]bool{false, true}])
	}
	for combo, out := range outputs {
		if !strings.Contains(outputs[[2]bool{true, true}], out) {
			t.Fatalf("output %q for %v not contained in fully-included output", out, combo)
		}
	}
}

func TestChunkBoundaryIndependence(t *testing.T) {
	doc := "prefix <!-- start -->what we want<!-- end --> suffix"
	build := func() *Scanner {
		return New(Config{
			StartToken:    []byte("<!-- start -->"),
			StopToken:     []byte("<!-- end -->"),
			StopIncluded:  true,
			MaxBytes:      1 << 20,
			MinBuffer:     4,
		})
	}
	whole := runChunks(t, build(), doc, len(doc))
	byBytes := runChunks(t, build(), doc, 1)
	if whole != byBytes {
		t.Fatalf("1-byte chunking produced %q, whole-body produced %q", byBytes, whole)
	}
	if want := "what we want<!-- end -->"; whole != want {
		t.Fatalf("got %q, want %q", whole, want)
	}
}

func TestByteBudgetTruncation(t *testing.T) {
	doc := strings.Repeat("x", 100)
	s := New(Config{MaxBytes: 37})
	got := runChunks(t, s, doc, 9)
	if len(got) != 37 {
		t.Fatalf("expected exactly 37 bytes, got %d", len(got))
	}
}

func TestNoTokensByteCounter(t *testing.T) {
	doc := "abcdefghij"
	s := New(Config{MaxBytes: 4})
	if s.Feed([]byte(doc)) != Done {
		t.Fatal("expected terminal outcome at budget")
	}
	if got := string(s.Output()); got != "abcd" {
		t.Fatalf("got %q, want %q", got, "abcd")
	}
}

func TestBudgetWithinStartToken(t *testing.T) {
	// The budget may sever the start token itself.
	s := New(Config{
		StartToken:    []byte("<article>"),
		StartIncluded: true,
		StopToken:     []byte("</article>"),
		StopIncluded:  true,
		MaxBytes:      5,
	})
	got := runChunks(t, s, "<article>body</article>", 64)
	if got != "<arti" {
		t.Fatalf("got %q, want first 5 bytes of the start token", got)
	}
}

func TestUnterminatedFragmentAtStreamEnd(t *testing.T) {
	s := New(Config{
		StartToken: []byte("<p>"),
		StopToken:  []byte("</p>"),
		MaxBytes:   1 << 20,
	})
	got := runChunks(t, s, "head<p>never closed", 5)
	if got != "never closed" {
		t.Fatalf("got %q, want %q", got, "never closed")
	}
}

func TestPendingStaysBoundedWithoutStart(t *testing.T) {
	s := New(Config{
		StartToken: []byte("NEEDLE"),
		MaxBytes:   1 << 20,
		MinBuffer:  8,
	})
	for i := 0; i < 10000; i++ {
		if s.Feed([]byte("noisenoise")) == Done {
			t.Fatal("unexpected terminal outcome")
		}
		if len(s.pending) > 8+len("noisenoise") {
			t.Fatalf("pending grew to %d bytes", len(s.pending))
		}
	}
}

func TestStopTokenStraddlesChunkBoundary(t *testing.T) {
	s := New(Config{
		StartToken: []byte("["),
		StopToken:  []byte("STOP"),
		MaxBytes:   1 << 20,
	})
	// Split the stop token across two feeds.
	if s.Feed([]byte("[fragment ST")) == Done {
		t.Fatal("premature terminal outcome")
	}
	if s.Feed([]byte("OP tail")) != Done {
		t.Fatal("expected terminal outcome once stop token completed")
	}
	if got := string(s.Output()); got != "fragment " {
		t.Fatalf("got %q, want %q", got, "fragment ")
	}
}

func TestFeedAfterDoneIsNoop(t *testing.T) {
	s := New(Config{MaxBytes: 3})
	s.Feed([]byte("abcdef"))
	before := string(s.Output())
	s.Feed([]byte("ghi"))
	s.Finish()
	if got := string(s.Output()); got != before {
		t.Fatalf("output changed after terminal outcome: %q -> %q", before, got)
	}
}
