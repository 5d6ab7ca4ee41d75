package processor

import "testing"

func TestCompact(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a\nb", "a b"},
		{"a   b\t\tc", "a b c"},
		{"line one\r\n\r\nline two", "line one line two"},
		{"already compact", "already compact"},
	}
	for _, tc := range cases {
		if got := Compact(tc.in); got != tc.want {
			t.Errorf("Compact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocumentWrapsPartialFragment(t *testing.T) {
	doc, err := Document(`<li class="hit">one</li><li>two</li>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := doc.Find("li").Length(); n != 2 {
		t.Fatalf("expected 2 list items, found %d", n)
	}
	if got := doc.Find("li.hit").Text(); got != "one" {
		t.Fatalf("expected queryable class selector, got %q", got)
	}
}

func TestDocumentKeepsExistingBody(t *testing.T) {
	doc, err := Document(`<body id="root"><p>x</p></body>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Find("body#root").Length() != 1 {
		t.Fatal("existing body element should be preserved")
	}
}

func TestTitleText(t *testing.T) {
	cases := []struct{ in, want string }{
		{`<title>Hello &amp; World</title>`, "Hello & World"},
		{`<title data-app="x"> padded </title>`, "padded"},
		{`<title>unterminated`, "unterminated"},
	}
	for _, tc := range cases {
		if got := TitleText(tc.in); got != tc.want {
			t.Errorf("TitleText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestText(t *testing.T) {
	got, err := Text(`<div><p>one</p><script>skip()</script><p>two  three</p></div>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "one two three" {
		t.Fatalf("got %q, want %q", got, "one two three")
	}
}
