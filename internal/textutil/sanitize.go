package textutil

import (
	"strings"
	"unicode"
)

const maxFileNameRunes = 120

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName turns a manuscript title into a safe file name. Slashes,
// backslashes, colons and asterisks become dashes, other unsafe characters
// are removed, whitespace runs collapse to one space, and trailing dots are
// dropped. Long titles are cut to 120 runes.
func SanitizeFileName(name string) string {
	name = strings.Join(strings.Fields(fileNameReplacer.Replace(name)), " ")
	if runes := []rune(name); len(runes) > maxFileNameRunes {
		name = strings.TrimSpace(string(runes[:maxFileNameRunes]))
	}
	return strings.TrimRight(name, ". ")
}

// Slug converts a title into a lowercase directory-safe token of at most
// maxRunes runes (no limit when maxRunes <= 0). Letters and digits are kept
// in any script, hyphens survive, and every other run of characters becomes
// a single underscore. Returns "untitled" when nothing usable remains.
func Slug(value string, maxRunes int) string {
	var b strings.Builder
	pendingSep := false
	n := 0
	for _, r := range strings.TrimSpace(value) {
		var out rune
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			out = unicode.ToLower(r)
		case r == '-':
			out = r
		default:
			pendingSep = n > 0
			continue
		}
		if pendingSep {
			if maxRunes > 0 && n+1 >= maxRunes {
				break
			}
			b.WriteByte('_')
			n++
			pendingSep = false
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(out)
		n++
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "untitled"
	}
	return out
}
