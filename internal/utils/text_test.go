package utils

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"":                                    "",
		"<p>Hello&nbsp;<b>world</b></p>":      "Hello world",
		"a &lt;b&gt; &amp; &quot;c&quot;":     `a <b> & "c"`,
		"<div>\n  line one\n\n<br/>two</div>": "line one two",
		"plain text stays":                    "plain text stays",
	}
	for in, want := range cases {
		if got := StripHTML(in); got != want {
			t.Fatalf("StripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripHTMLPlainTextRoundTrip(t *testing.T) {
	plain := "The export button is broken on the settings page"
	if got := StripHTML(plain); got != plain {
		t.Fatalf("expected plain text unchanged, got %q", got)
	}
}

func TestTitleShortFirstSentence(t *testing.T) {
	got := Title("Login fails. Please check the auth service as soon as possible")
	if got != "Login fails" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestTitleTruncatesLongText(t *testing.T) {
	text := strings.Repeat("abcdefghij", 7)
	got := Title(text)
	if got != text[:50]+"..." {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestTitleCountsRunes(t *testing.T) {
	text := strings.Repeat("가", 60)
	got := Title(text)
	if got != strings.Repeat("가", 50)+"..." {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("요청합니다", 2); got != "요청" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := TruncateRunes("abc", 0); got != "abc" {
		t.Fatalf("unexpected: %q", got)
	}
}
