package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFingerprint(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		wantErr     bool
	}{
		{"valid alphanumeric", "abc123def456", false},
		{"valid with separators", "abc-123_def.456", false},
		{"minimum length", "12345678", false},
		{"too short", "1234567", true},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"invalid characters", "abc123<script>", true},
		{"whitespace", "abc 123 def", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFingerprint(tt.fingerprint)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmailAddress(t *testing.T) {
	assert.NoError(t, ValidateEmailAddress("box7f3k@mail.example"))
	assert.Error(t, ValidateEmailAddress(""))
	assert.Error(t, ValidateEmailAddress("not-an-address"))
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare address", "alice@example.com", "alice@example.com"},
		{"angle brackets", "<alice@example.com>", "alice@example.com"},
		{"display name", "Alice <alice@example.com>", "alice@example.com"},
		{"surrounding space", "  alice@example.com  ", "alice@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractAddress(tt.input))
		})
	}
}

func TestAddressDomain(t *testing.T) {
	assert.Equal(t, "mail.example", AddressDomain("box7f3k@mail.example"))
	assert.Equal(t, "mail.example", AddressDomain("box7f3k@MAIL.Example"))
	assert.Equal(t, "", AddressDomain("no-domain"))
	assert.Equal(t, "", AddressDomain("trailing@"))
}
