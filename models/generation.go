package models

// Confidence levels reported by the generation provider. ConfidenceLow is
// also the degraded default when the provider response cannot be parsed.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// GenerationResult is the raw output of the generation provider.
type GenerationResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Citation is one quoted passage the generator claims to have grounded its
// answer in. Quote must appear verbatim (modulo normalization) in one of the
// supplied context blocks to verify.
type Citation struct {
	Quote  string `json:"quote"`
	Source string `json:"source"`
}

// StructuredAnswer is the JSON body the generation provider is prompted to
// return. A malformed body degrades to the raw text with low confidence
// instead of failing the query.
type StructuredAnswer struct {
	Answer             string     `json:"answer"`
	Confidence         string     `json:"confidence"`
	Citations          []Citation `json:"citations"`
	MissingInformation string     `json:"missing_information"`
}

// IntegrityReport summarizes citation verification for one answer.
// Score is verified/total and defaults to 1 when there are no citations.
type IntegrityReport struct {
	Verified               bool    `json:"is_verified"`
	Score                  float64 `json:"integrity_score"`
	TotalCitations         int     `json:"total_citations"`
	VerifiedCitations      int     `json:"verified_citations"`
	HallucinatedQuoteCount int     `json:"hallucinated_quote_count"`
}
