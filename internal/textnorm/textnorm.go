// Package textnorm repairs recurring OCR misreads in recognized shop-table
// text before any parsing happens. The rules target the printed German price
// tables the crawler captures; each one is anchored so it only fires on the
// malformed pattern, never on already-correct text, which keeps the whole
// pass idempotent.
package textnorm

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

type rule struct {
	re   *regexp.Regexp
	repl string
	// repeat reapplies the rule until a fixed point. Needed for the
	// digit-context substitutions, where matches can overlap ("1O2O3").
	repeat bool
}

// The order is part of the contract: the marker repairs must run before the
// glue-split and the SO substitution, which both key on a correct marker.
var rules = []rule{
	// "B1s"/"Bls"/"8ls" are misreads of the quantity marker "Bis".
	{re: regexp.MustCompile(`\b[B8][1Il][sS]\b`), repl: "Bis"},
	// Marker glued to its quantity: "Bis9" -> "Bis 9", "Ab50" -> "Ab 50".
	{re: regexp.MustCompile(`\b([Aa]b|[Bb]is)(\d)`), repl: "$1 $2"},
	// "SO" right after a quantity marker is almost always a misread "50".
	{re: regexp.MustCompile(`\b([Aa]b|[Bb]is) ?[S5][Oo]\b`), repl: "$1 50"},
	// Letter look-alikes inside numeric tokens.
	{re: regexp.MustCompile(`(\d)[Oo](\d)`), repl: "${1}0${2}", repeat: true},
	{re: regexp.MustCompile(`(\d)[Oo]\b`), repl: "${1}0"},
	{re: regexp.MustCompile(`(\d)[lI](\d)`), repl: "${1}1${2}", repeat: true},
	// Stray symbol runs glued to the currency sign ("€&*").
	{re: regexp.MustCompile(`€\s*[&*]+`), repl: "€"},
}

// Normalize applies the ordered OCR-error corrections to raw recognized
// text. It is pure and idempotent; already-correct text passes unchanged.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	for _, r := range rules {
		if r.repeat {
			for {
				out := r.re.ReplaceAllString(s, r.repl)
				if out == s {
					break
				}
				s = out
			}
			continue
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}
