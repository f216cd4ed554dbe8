package cardgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
)

// MaxCardNumberLen is the longest card number the account store accepts.
const MaxCardNumberLen = 19

// ValidateCardNumber checks a card number as entered at the terminal:
// 1..19 characters, none of them whitespace. Digits are not required.
func ValidateCardNumber(card string) error {
	if card == "" {
		return fmt.Errorf("card number is required")
	}
	if l := len(card); l > MaxCardNumberLen {
		return fmt.Errorf("card number must be at most %d characters (got %d)", MaxCardNumberLen, l)
	}
	if strings.IndexFunc(card, unicode.IsSpace) >= 0 {
		return fmt.Errorf("card number must not contain whitespace")
	}
	return nil
}

// GeneratePANWithLength returns a random Luhn-valid PAN of totalLen (13..19)
// digits starting with bin.
func GeneratePANWithLength(bin string, totalLen int) (string, error) {
	if err := ValidateBIN(bin); err != nil {
		return "", err
	}
	if totalLen < 13 || totalLen > MaxCardNumberLen {
		return "", fmt.Errorf("total length must be 13..%d", MaxCardNumberLen)
	}
	fill := totalLen - 1 - len(bin)
	if fill <= 0 {
		return "", fmt.Errorf("bin too long: %s", bin)
	}
	digitsPart, err := randomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	body := bin + digitsPart
	return body + luhnCheckDigit(body), nil
}

// GenerateUniquePAN retries GeneratePANWithLength until exists reports the
// number unused, or gives up after maxRetries.
func GenerateUniquePAN(bin string, totalLen, maxRetries int, exists func(string) (bool, error)) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for i := 0; i <= maxRetries; i++ {
		pan, err := GeneratePANWithLength(bin, totalLen)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return pan, nil
		}
		used, err := exists(pan)
		if err != nil {
			return "", fmt.Errorf("exists callback: %w", err)
		}
		if !used {
			return pan, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique PAN after %d retries", maxRetries)
}

// randomDigits uses rejection sampling (bytes >= 250 are dropped) so every digit is equally likely.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if b := buf[i]; b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	cd := (10 - (sum % 10)) % 10
	return string('0' + byte(cd))
}

func ValidateBIN(bin string) error {
	if bin == "" {
		return fmt.Errorf("bin is required")
	}
	if !IsDigits(bin) {
		return fmt.Errorf("bin must contain digits only")
	}
	switch len(bin) {
	case 6, 8, 9:
		return nil
	default:
		return fmt.Errorf("bin must be 6, 8, or 9 digits")
	}
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskPAN hides everything but the last four characters (and the first six for
// numbers of twelve or more). Card numbers go through it before being logged.
func MaskPAN(card string) string {
	n := len(card)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n < 12:
		return strings.Repeat("*", n-4) + LastN(card, 4)
	default:
		return card[:6] + strings.Repeat("*", n-10) + LastN(card, 4)
	}
}
