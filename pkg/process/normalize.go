package process

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Trailing slashes are kept: /docs and /docs/ may be different pages.
const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagSortQuery |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveDotSegments

// Normalize canonicalizes a URL so that trivially different spellings of
// the same page dedupe to one visited entry.
func Normalize(rawURL string) (string, error) {
	normalized, err := purell.NormalizeURLString(strings.TrimSpace(rawURL), normalizeFlags)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	return normalized, nil
}
