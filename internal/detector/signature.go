package detector

import (
	"regexp"
	"strings"

	"github.com/dinestack/dinewatch/internal/utils"
)

var (
	digitRunRe   = regexp.MustCompile(`[0-9]+`)
	quoteRe      = regexp.MustCompile("['\"`]")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

const maxSignatureLength = 100

// GenerateSignature builds the stable deduplication key for an error. The
// normalisation replaces digit runs with a placeholder so messages that differ
// only in embedded ids, counts, or timestamps map to the same signature.
func GenerateSignature(errorMessage, category string) string {
	return category + "-" + normalizeMessage(errorMessage)
}

func normalizeMessage(msg string) string {
	norm := strings.ToLower(msg)
	norm = digitRunRe.ReplaceAllString(norm, "#")
	norm = quoteRe.ReplaceAllString(norm, "")
	norm = whitespaceRe.ReplaceAllString(strings.TrimSpace(norm), "-")
	return utils.Truncate(norm, maxSignatureLength)
}
