// Package phone canonicalizes Brazilian phone numbers into digit-only
// candidate sets for reachability checks.
package phone

import "strings"

// CountryCode is the Brazilian international calling prefix.
const CountryCode = "55"

// Digits strips everything except ASCII digits from s, including any
// reachability marks left over from a previous enrichment pass.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants returns the candidate forms of one digit string.
//
// Carriers migrated mobile numbers from 8 to 9 digits by prefixing a '9'
// after the two-digit area code, and external services disagree on which
// form they index. An 11-digit number with '9' in third position therefore
// also yields its legacy 10-digit form, and a 10-digit number also yields
// the modern 11-digit form. Other lengths pass through unexpanded.
func Variants(digits string) []string {
	switch {
	case len(digits) == 11 && digits[2] == '9':
		return []string{digits, digits[:2] + digits[3:]}
	case len(digits) == 10:
		return []string{digits, digits[:2] + "9" + digits[2:]}
	default:
		return []string{digits}
	}
}

// Candidates normalizes a set of raw phone strings into a deduplicated
// list of digit-only candidates, expanded per Variants. Empty inputs are
// dropped. Order follows first appearance.
func Candidates(raws []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range raws {
		d := Digits(raw)
		if d == "" {
			continue
		}
		for _, v := range Variants(d) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// WithCountryCode prefixes the national candidate with the country code.
// Only 10 and 11 digit numbers are national shapes; anything else (already
// prefixed or malformed) is returned unchanged.
func WithCountryCode(digits string) string {
	if len(digits) == 10 || len(digits) == 11 {
		return CountryCode + digits
	}
	return digits
}

// TrimCountryCode removes a leading country code from a 12 or 13 digit
// string, returning the national form.
func TrimCountryCode(digits string) string {
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, CountryCode) {
		return digits[2:]
	}
	return digits
}

// SplitField parses a stored phone field ("11987654321 ✅, 1134567890 ❌")
// into its raw number tokens, marks included.
func SplitField(field string) []string {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
