package detector

import "github.com/dinestack/dinewatch/internal/models"

// GroupBySignature buckets detected errors by their signature, preserving the
// order in which each signature first appeared.
func GroupBySignature(errs []models.DetectedError) ([]string, map[string][]models.DetectedError) {
	order := make([]string, 0, len(errs))
	groups := make(map[string][]models.DetectedError, len(errs))
	for _, e := range errs {
		if _, ok := groups[e.Signature]; !ok {
			order = append(order, e.Signature)
		}
		groups[e.Signature] = append(groups[e.Signature], e)
	}
	return order, groups
}

// MergeOccurrences folds multiple occurrences of the same signature into one
// record: the first error keeps its metadata, occurrence counts sum, LastSeen
// extends to the max, and concatenated log lines cap at MaxMergedLogLines.
func MergeOccurrences(errs []models.DetectedError) models.DetectedError {
	if len(errs) == 0 {
		return models.DetectedError{}
	}

	merged := errs[0]
	merged.LogLines = append([]string(nil), errs[0].LogLines...)

	for _, e := range errs[1:] {
		merged.OccurrenceCount += e.OccurrenceCount
		if e.LastSeen.After(merged.LastSeen) {
			merged.LastSeen = e.LastSeen
		}
		merged.LogLines = append(merged.LogLines, e.LogLines...)
	}

	if len(merged.LogLines) > models.MaxMergedLogLines {
		merged.LogLines = merged.LogLines[:models.MaxMergedLogLines]
	}
	return merged
}

// Dedupe collapses a detection run to one merged record per signature.
func Dedupe(errs []models.DetectedError) []models.DetectedError {
	order, groups := GroupBySignature(errs)
	deduped := make([]models.DetectedError, 0, len(order))
	for _, sig := range order {
		deduped = append(deduped, MergeOccurrences(groups[sig]))
	}
	return deduped
}
