package engine

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ivlev/moodboard/internal/encoder"
)

const defaultSlug = "mood-board"

// Slug lowercases title, folds accents to ASCII and joins the remaining
// alphanumeric runs with single dashes.
func Slug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return defaultSlug
	}
	return b.String()
}

// Filename is "<slug>-<yyyy-mm-dd>.<ext>" with the date taken in UTC.
func Filename(title string, f encoder.Format, at time.Time) string {
	return Slug(title) + "-" + at.UTC().Format("2006-01-02") + "." + f.Extension()
}
