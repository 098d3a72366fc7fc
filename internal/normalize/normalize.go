// Package normalize folds free-form text into a locale-insensitive form for
// pattern matching.
package normalize

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var strokeFolder = strings.NewReplacer("đ", "d", "Đ", "d")

// Fold lower-cases s, strips combining marks and folds the stroked "đ" to "d".
// On a transform failure it falls back to a plain lower-case of s.
func Fold(s string) string {
	// transform chains carry state; build one per call
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(s)
	folded, _, err := transform.String(chain, lower)
	if err != nil {
		slog.Warn("unicode normalization error", "error", err)
		return lower
	}
	return strokeFolder.Replace(folded)
}
