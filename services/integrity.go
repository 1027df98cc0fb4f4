package services

import (
	"strings"
	"unicode"

	"rag-knowledge-platform/models"
)

// minVerifiableQuoteLen is the minimum normalized quote length; anything
// shorter is rejected outright as unverifiable.
const minVerifiableQuoteLen = 5

// Hallucination verdicts from the analysis pass.
const (
	VerdictAccept = "accept"
	VerdictFlag   = "flag"
	VerdictReject = "reject"
)

// normalizeForMatch lowercases, strips punctuation, and collapses
// whitespace so quote matching tolerates formatting differences.
func normalizeForMatch(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation becomes a word boundary, not a deletion glue.
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// VerifyCitations checks every citation quote for substring containment in
// the normalized context blocks. With zero citations the report scores 1.0
// and stays verified (greeting-style answers cite nothing).
func VerifyCitations(citations []models.Citation, contextBlocks []string) models.IntegrityReport {
	report := models.IntegrityReport{
		Verified:       true,
		Score:          1.0,
		TotalCitations: len(citations),
	}
	if len(citations) == 0 {
		return report
	}

	normalized := make([]string, len(contextBlocks))
	for i, block := range contextBlocks {
		normalized[i] = normalizeForMatch(block)
	}

	for _, citation := range citations {
		quote := normalizeForMatch(citation.Quote)
		if len(quote) < minVerifiableQuoteLen {
			report.HallucinatedQuoteCount++
			continue
		}
		found := false
		for _, block := range normalized {
			if strings.Contains(block, quote) {
				found = true
				break
			}
		}
		if found {
			report.VerifiedCitations++
		} else {
			report.HallucinatedQuoteCount++
		}
	}

	report.Score = float64(report.VerifiedCitations) / float64(report.TotalCitations)
	if report.HallucinatedQuoteCount > 0 {
		report.Verified = false
	}
	return report
}

// AnalyzeHallucination is an independent heuristic pass over the answer and
// its verification report. A reject verdict means the answer must be
// replaced with a safety fallback; flag means return it marked unverified.
func AnalyzeHallucination(answer models.StructuredAnswer, report models.IntegrityReport, contextBlocks []string) string {
	if report.Verified {
		return VerdictAccept
	}

	// A citation-heavy answer where most quotes failed verification is
	// fabrication, not formatting noise.
	if report.TotalCitations >= 2 && report.Score < 0.5 {
		return VerdictReject
	}

	// An answer that contradicts its own missing-information admission
	// while citing nothing verifiable is rejected too.
	if report.VerifiedCitations == 0 && report.TotalCitations > 0 &&
		strings.TrimSpace(answer.MissingInformation) != "" {
		return VerdictReject
	}

	return VerdictFlag
}
