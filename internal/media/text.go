package media

import (
	"strings"
	"unicode"
)

var drawTextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, "’",
)

// SanitizeDrawText makes arbitrary user text safe to place inside a quoted
// drawtext value. Control characters are dropped, single quotes become a
// typographic apostrophe so they cannot close the quote, and the option
// parser's escape characters are escaped.
func SanitizeDrawText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return drawTextEscaper.Replace(s)
}

var (
	filterOptionEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	filterGraphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeFilterPath escapes a file path for use as an unquoted filter option
// value inside a filter graph. ffmpeg unescapes twice: once when splitting
// the graph into filters and once when parsing the filter's options.
func escapeFilterPath(path string) string {
	return filterGraphEscaper.Replace(filterOptionEscaper.Replace(path))
}

// escapeConcatPath quotes a path for a concat demuxer list entry.
func escapeConcatPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// SplitAddress splits "123 Main St, Springfield, IL 62704" into the street
// line and the remainder. An address without a comma is all street.
func SplitAddress(address string) (street, city string) {
	address = strings.TrimSpace(address)
	street, city, found := strings.Cut(address, ",")
	if !found {
		return address, ""
	}
	return strings.TrimSpace(street), strings.TrimSpace(city)
}
