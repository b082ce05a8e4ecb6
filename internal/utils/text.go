package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	entityReplacer    = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
	)
)

// StripHTML turns a rich-text body into a single line of plain text.
func StripHTML(markup string) string {
	if markup == "" {
		return ""
	}
	text := tagPattern.ReplaceAllString(markup, " ")
	text = entityReplacer.Replace(text)
	return CollapseSpaces(text)
}

func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// TruncateRunes caps s at n runes. n <= 0 means no cap.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

const TitleMaxRunes = 50

// Title returns the first line or sentence of text when it fits in
// TitleMaxRunes, otherwise the first TitleMaxRunes runes followed by "...".
func Title(text string) string {
	text = strings.TrimSpace(text)
	first := text
	if i := strings.IndexAny(text, "\n.!?"); i >= 0 {
		first = text[:i]
	}
	first = strings.TrimSpace(first)
	if first != "" && utf8.RuneCountInString(first) <= TitleMaxRunes {
		return first
	}
	if utf8.RuneCountInString(text) <= TitleMaxRunes {
		return text
	}
	return string([]rune(text)[:TitleMaxRunes]) + "..."
}
