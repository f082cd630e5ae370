package validation

import (
	"fmt"
	"net/mail"
	"strings"

	"mailpipe/internal/constants"
)

const maxFingerprintLength = 128

// ValidateFingerprint checks that a client identifier is usable as a routing
// key. Fingerprints are opaque, but a floor on length keeps accidental
// cross-client delivery from trivially short values.
func ValidateFingerprint(fingerprint string) error {
	if len(fingerprint) < constants.DefaultMinFingerprintLength {
		return fmt.Errorf("fingerprint must be at least %d characters", constants.DefaultMinFingerprintLength)
	}
	if len(fingerprint) > maxFingerprintLength {
		return fmt.Errorf("fingerprint must be at most %d characters", maxFingerprintLength)
	}
	for _, r := range fingerprint {
		if !isFingerprintRune(r) {
			return fmt.Errorf("fingerprint contains invalid character %q", r)
		}
	}
	return nil
}

func isFingerprintRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}

// ValidateEmailAddress checks that an address parses per RFC 5322.
func ValidateEmailAddress(address string) error {
	if address == "" {
		return fmt.Errorf("email address is empty")
	}
	if _, err := mail.ParseAddress(address); err != nil {
		return fmt.Errorf("invalid email address %q: %w", address, err)
	}
	return nil
}

// ExtractAddress reduces "Name <user@host>" to "user@host". Inputs that do
// not parse are returned trimmed, as presented by the peer.
func ExtractAddress(s string) string {
	if addr, err := mail.ParseAddress(s); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "<>"))
}

// AddressDomain returns the lowercased domain of an email address, or empty
// string when there is none.
func AddressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
