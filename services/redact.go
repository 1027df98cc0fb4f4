package services

import "regexp"

// PII patterns redacted from chunk text before it enters a generation
// context. Order matters: national-id patterns run before the generic
// phone pattern so an SSN is not half-consumed as a phone number.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// SSN-like ddd-dd-dddd and long bare digit runs (9-12 digits).
	nationalIDPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9,12}\b`)

	// International and local phone formats with common separators.
	phonePattern = regexp.MustCompile(`(\+\d{1,3}[\s\-.]?)?(\(\d{2,4}\)[\s\-.]?)?\d{2,4}[\s\-.]\d{2,4}[\s\-.]\d{2,4}`)
)

// RedactPII masks emails, national-id-like numbers, and phone numbers.
func RedactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[EMAIL REDACTED]")
	text = nationalIDPattern.ReplaceAllString(text, "[ID REDACTED]")
	text = phonePattern.ReplaceAllString(text, "[PHONE REDACTED]")
	return text
}
