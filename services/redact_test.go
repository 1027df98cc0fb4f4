package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	got := RedactPII("Contact jane.doe+hr@example.co.uk for details.")
	assert.Equal(t, "Contact [EMAIL REDACTED] for details.", got)
}

func TestRedactNationalID(t *testing.T) {
	assert.Equal(t, "SSN on file: [ID REDACTED].", RedactPII("SSN on file: 123-45-6789."))
	assert.Equal(t, "Account [ID REDACTED] is active.", RedactPII("Account 123456789012 is active."))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "Call [PHONE REDACTED] today.", RedactPII("Call 555-123-4567 today."))
	assert.Equal(t, "Reach us at [PHONE REDACTED].", RedactPII("Reach us at +44 20 7946 0958."))
}

func TestRedactIDBeforePhone(t *testing.T) {
	// The SSN pattern must consume the whole number before the phone
	// pattern can mangle it.
	got := RedactPII("123-45-6789")
	assert.Equal(t, "[ID REDACTED]", got)
	assert.NotContains(t, got, "PHONE")
}

func TestRedactLeavesCleanTextAlone(t *testing.T) {
	text := "The onboarding checklist has twelve steps and three owners."
	assert.Equal(t, text, RedactPII(text))
}
