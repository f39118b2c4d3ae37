package format

import "testing"

func TestEscape(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"v1 emphasis", Markdown, "a_b*c", `a\_b\*c`},
		{"v1 link and code", Markdown, "[x]`y`", "\\[x]\\`y\\`"},
		{"v1 leaves dots", Markdown, "0.5 SOL", "0.5 SOL"},
		{"v2 punctuation", MarkdownV2, "1.5 (SOL)!", `1\.5 \(SOL\)\!`},
		{"v2 backslash", MarkdownV2, `a\b`, `a\\b`},
		{"v2 code", MarkdownV2Code, "a`b.c", "a\\`b.c"},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
