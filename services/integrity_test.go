package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rag-knowledge-platform/models"
)

func TestNormalizeForMatch(t *testing.T) {
	assert.Equal(t, "refunds are issued within 30 days",
		normalizeForMatch("  Refunds are issued—within 30 days!  "))
	assert.Equal(t, "a b c", normalizeForMatch("A,\n\nB...C"))
	assert.Equal(t, "", normalizeForMatch("  ...  "))
}

func TestVerifyCitationsVerbatimQuote(t *testing.T) {
	blocks := []string{"Refunds are issued within 30 days of purchase, no questions asked."}
	citations := []models.Citation{
		{Quote: "refunds are issued within 30 days", Source: "policy.md"},
	}

	report := VerifyCitations(citations, blocks)
	assert.True(t, report.Verified)
	assert.Equal(t, 1.0, report.Score)
	assert.Equal(t, 1, report.VerifiedCitations)
	assert.Zero(t, report.HallucinatedQuoteCount)
}

func TestVerifyCitationsToleratesFormatting(t *testing.T) {
	blocks := []string{"The server restarts\nnightly, at 02:00 UTC."}
	citations := []models.Citation{
		{Quote: "THE SERVER RESTARTS NIGHTLY, AT 02:00 UTC"},
	}

	report := VerifyCitations(citations, blocks)
	assert.True(t, report.Verified)
	assert.Equal(t, 1, report.VerifiedCitations)
}

func TestVerifyCitationsFabricatedQuote(t *testing.T) {
	blocks := []string{"Refunds are issued within 30 days of purchase."}
	citations := []models.Citation{
		{Quote: "refunds are never issued under any circumstances"},
	}

	report := VerifyCitations(citations, blocks)
	assert.False(t, report.Verified)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, 1, report.HallucinatedQuoteCount)
}

func TestVerifyCitationsTooShortToVerify(t *testing.T) {
	blocks := []string{"Yes, the office is open on Fridays."}
	citations := []models.Citation{{Quote: "Yes."}}

	report := VerifyCitations(citations, blocks)
	assert.False(t, report.Verified)
	assert.Equal(t, 1, report.HallucinatedQuoteCount)
}

func TestVerifyCitationsNoCitations(t *testing.T) {
	report := VerifyCitations(nil, []string{"some context"})
	assert.True(t, report.Verified)
	assert.Equal(t, 1.0, report.Score)
	assert.Zero(t, report.TotalCitations)
}

func TestVerifyCitationsMixed(t *testing.T) {
	blocks := []string{"Alpha release ships in March. Beta follows in June."}
	citations := []models.Citation{
		{Quote: "alpha release ships in march"},
		{Quote: "gamma ships in december"},
	}

	report := VerifyCitations(citations, blocks)
	assert.False(t, report.Verified)
	assert.Equal(t, 0.5, report.Score)
	assert.Equal(t, 1, report.VerifiedCitations)
	assert.Equal(t, 1, report.HallucinatedQuoteCount)
}

func TestAnalyzeHallucinationAcceptsVerified(t *testing.T) {
	report := models.IntegrityReport{Verified: true, Score: 1.0, TotalCitations: 2, VerifiedCitations: 2}
	assert.Equal(t, VerdictAccept, AnalyzeHallucination(models.StructuredAnswer{}, report, nil))
}

func TestAnalyzeHallucinationRejectsMostlyFabricated(t *testing.T) {
	report := models.IntegrityReport{
		Verified:               false,
		Score:                  0.0,
		TotalCitations:         3,
		HallucinatedQuoteCount: 3,
	}
	assert.Equal(t, VerdictReject, AnalyzeHallucination(models.StructuredAnswer{}, report, nil))
}

func TestAnalyzeHallucinationRejectsContradictoryAdmission(t *testing.T) {
	answer := models.StructuredAnswer{MissingInformation: "no pricing data was available"}
	report := models.IntegrityReport{
		Verified:               false,
		Score:                  0.0,
		TotalCitations:         1,
		HallucinatedQuoteCount: 1,
	}
	assert.Equal(t, VerdictReject, AnalyzeHallucination(answer, report, nil))
}

func TestAnalyzeHallucinationFlagsSingleMiss(t *testing.T) {
	report := models.IntegrityReport{
		Verified:               false,
		Score:                  0.0,
		TotalCitations:         1,
		HallucinatedQuoteCount: 1,
	}
	assert.Equal(t, VerdictFlag, AnalyzeHallucination(models.StructuredAnswer{}, report, nil))
}

func TestAnalyzeHallucinationFlagsHalfVerified(t *testing.T) {
	report := models.IntegrityReport{
		Verified:               false,
		Score:                  0.5,
		TotalCitations:         2,
		VerifiedCitations:      1,
		HallucinatedQuoteCount: 1,
	}
	assert.Equal(t, VerdictFlag, AnalyzeHallucination(models.StructuredAnswer{}, report, nil))
}
