package format

import (
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const prefixLen = 4

// SlugPrefix keeps the first four letters or digits of a location slug,
// upper-cased. Slugs without any yield "GYM".
func SlugPrefix(slug string) string {
	var b strings.Builder
	for _, r := range slug {
		if b.Len() == prefixLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "GYM"
	}
	return b.String()
}

// InvoiceNumber formats INV-<prefix>-<ULID>. ULIDs sort by creation time so
// numbers from one location order chronologically.
func InvoiceNumber(slug string, id ulid.ULID) string {
	return "INV-" + SlugPrefix(slug) + "-" + id.String()
}
