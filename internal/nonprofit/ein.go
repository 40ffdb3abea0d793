package nonprofit

import "regexp"

// An EIN is well-formed as NN-NNNNNNN or as 9 bare digits. Format validity
// says nothing about whether the number exists on the IRS rolls.
var (
	einDashedRe = regexp.MustCompile(`^\d{2}-\d{7}$`)
	einDigitsRe = regexp.MustCompile(`^\d{9}$`)
)

// ValidEIN reports whether s is a well-formed employer identification number.
func ValidEIN(s string) bool {
	return einDashedRe.MatchString(s) || einDigitsRe.MatchString(s)
}

// NormalizeEIN returns the EIN in NN-NNNNNNN form, or "" if malformed.
func NormalizeEIN(s string) string {
	if einDashedRe.MatchString(s) {
		return s
	}
	if einDigitsRe.MatchString(s) {
		return s[:2] + "-" + s[2:]
	}
	return ""
}
