package security

import (
	"crypto/subtle"
	"fmt"

	"github.com/alovak/cardflow-atm/internal/cardgen"
)

// PINLength is the number of digits in a terminal PIN.
const PINLength = 4

// ValidatePIN checks that pin is exactly four ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) != PINLength || !cardgen.IsDigits(pin) {
		return fmt.Errorf("pin must be exactly %d digits", PINLength)
	}
	return nil
}

// PINMatches compares a stored PIN with an attempt in constant time.
func PINMatches(stored, attempt string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(attempt)) == 1
}
