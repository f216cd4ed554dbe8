package security

import "testing"

func TestValidatePIN(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1111", true},
		{"0000", true},
		{"111", false},
		{"11111", false},
		{"12a4", false},
		{"", false},
		{" 123", false},
	}
	for _, c := range cases {
		err := ValidatePIN(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ValidatePIN(%q) err=%v want ok=%v", c.in, err, c.ok)
		}
	}
}

func TestPINMatches(t *testing.T) {
	if !PINMatches("1234", "1234") {
		t.Fatalf("expected match")
	}
	if PINMatches("1234", "1235") || PINMatches("1234", "123") || PINMatches("1234", "") {
		t.Fatalf("expected mismatch")
	}
}
