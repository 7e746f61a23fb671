// Package textutils provides reference extraction and validation for remittance text.
package textutils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"
)

// DefaultReferencePatterns matches an 11-digit personal code that is not part of a
// longer digit run. Each pattern must capture the reference in group 1.
var DefaultReferencePatterns = []string{
	`(?:^|[^0-9])([0-9]{11})(?:[^0-9]|$)`,
}

var (
	rfPattern       = regexp.MustCompile(`^RF[0-9]{2}[0-9A-Z]{1,21}$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
	estonianRefSize = [2]int{2, 20}
)

// Token is a reference candidate found in free text
type Token struct {
	Value string
	Valid bool
}

// Extractor scans unstructured remittance text with a fixed set of patterns
type Extractor struct {
	patterns []*regexp.Regexp
}

// NewExtractor compiles the given patterns. Empty input selects DefaultReferencePatterns.
func NewExtractor(patterns []string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultReferencePatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid reference pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("reference pattern %q has no capture group", p)
		}
		compiled = append(compiled, re)
	}

	return &Extractor{patterns: compiled}, nil
}

// Extract returns the distinct tokens in order of first appearance.
// Overlapping boundary characters are shared between adjacent matches.
func (e *Extractor) Extract(text string) []Token {
	var tokens []Token
	seen := make(map[string]bool)

	for _, re := range e.patterns {
		pos := 0
		for pos < len(text) {
			loc := re.FindStringSubmatchIndex(text[pos:])
			if loc == nil || loc[2] < 0 {
				break
			}
			value := NormalizeReference(text[pos+loc[2] : pos+loc[3]])
			if value != "" && !seen[value] {
				seen[value] = true
				tokens = append(tokens, Token{Value: value, Valid: ValidateToken(value)})
			}
			next := loc[3]
			if next <= 0 {
				next = loc[1]
			}
			if next <= 0 {
				next = 1
			}
			pos += next
		}
	}

	return tokens
}

// ValidateToken applies the checksum matching the token's shape. Tokens
// without a known shape are accepted as-is.
func ValidateToken(value string) bool {
	switch {
	case len(value) == 11 && digitsPattern.MatchString(value):
		return IsValidPersonalCode(value)
	case strings.HasPrefix(value, "RF"):
		return IsValidRFReference(value)
	default:
		return true
	}
}

// NormalizeReference removes whitespace and upper-cases a reference
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, ref))
}

// IsValidStructuredReference accepts an ISO 11649 creditor reference or an
// Estonian 7-3-1 reference number.
func IsValidStructuredReference(ref string) bool {
	ref = NormalizeReference(ref)
	if strings.HasPrefix(ref, "RF") {
		return IsValidRFReference(ref)
	}
	return IsValidEstonianReference(ref)
}

// IsValidRFReference validates an ISO 11649 reference with its mod-97 check digits
func IsValidRFReference(ref string) bool {
	ref = NormalizeReference(ref)
	if !rfPattern.MatchString(ref) {
		return false
	}

	rearranged := ref[4:] + ref[:4]
	var numeric strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			fmt.Fprintf(&numeric, "%d", r-'A'+10)
		} else {
			numeric.WriteRune(r)
		}
	}

	n, ok := new(big.Int).SetString(numeric.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// IsValidEstonianReference validates a domestic reference number with the 7-3-1 check digit
func IsValidEstonianReference(ref string) bool {
	ref = NormalizeReference(ref)
	if len(ref) < estonianRefSize[0] || len(ref) > estonianRefSize[1] || !digitsPattern.MatchString(ref) {
		return false
	}

	weights := [3]int{7, 3, 1}
	body := ref[:len(ref)-1]
	sum := 0
	for i := 0; i < len(body); i++ {
		digit := int(body[len(body)-1-i] - '0')
		sum += digit * weights[i%3]
	}

	check := (10 - sum%10) % 10
	return check == int(ref[len(ref)-1]-'0')
}

// IsValidPersonalCode validates an 11-digit Estonian personal identification code
func IsValidPersonalCode(code string) bool {
	if len(code) != 11 || !digitsPattern.MatchString(code) {
		return false
	}
	if code[0] < '1' || code[0] > '8' {
		return false
	}

	digits := make([]int, 11)
	for i := range code {
		digits[i] = int(code[i] - '0')
	}

	first := [10]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 1}
	second := [10]int{3, 4, 5, 6, 7, 8, 9, 1, 2, 3}

	check := weightedMod11(digits, first)
	if check == 10 {
		check = weightedMod11(digits, second)
		if check == 10 {
			check = 0
		}
	}

	return check == digits[10]
}

func weightedMod11(digits []int, weights [10]int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	return sum % 11
}

// JoinRemittance joins unstructured remittance lines into one string with
// whitespace collapsed.
func JoinRemittance(lines []string) string {
	return strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}
