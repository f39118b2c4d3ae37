// Package format escapes user-supplied text for Telegram parse modes.
package format

import "strings"

var (
	mdV1 = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

	mdV2 = func() *strings.Replacer {
		const specials = "_*[]()~`>#+-=|{}.!\\"
		pairs := make([]string, 0, 2*len(specials))
		for _, r := range specials {
			pairs = append(pairs, string(r), `\`+string(r))
		}
		return strings.NewReplacer(pairs...)
	}()

	mdV2Code = strings.NewReplacer("`", "\\`", `\`, `\\`)
)

// Markdown escapes s for legacy Markdown (tele.ModeMarkdown).
func Markdown(s string) string { return mdV1.Replace(s) }

// MarkdownV2 escapes s for MarkdownV2 text outside entities.
func MarkdownV2(s string) string { return mdV2.Replace(s) }

// MarkdownV2Code escapes s for use inside a MarkdownV2 code or pre entity,
// where only the backtick and the backslash are special.
func MarkdownV2Code(s string) string { return mdV2Code.Replace(s) }
