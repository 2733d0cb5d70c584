package imports

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Thresholds for the two greedy assignment passes
const (
	matchThresholdStrict  = 0.6
	matchThresholdRelaxed = 0.3
)

// Component weights for the combined similarity score
const (
	weightWordOverlap = 0.4
	weightSubstring   = 0.3
	weightSemantic    = 0.1
	weightAbbrev      = 0.2
)

// tokenSynonyms expands the abbreviations debt-portfolio files actually use.
// A token maps to the canonical tokens it stands for.
var tokenSynonyms = map[string][]string{
	"acct":  {"account"},
	"acc":   {"account"},
	"no":    {"number"},
	"num":   {"number"},
	"nbr":   {"number"},
	"ssn":   {"social", "security"},
	"soc":   {"social"},
	"sec":   {"security"},
	"dob":   {"date", "birth"},
	"bday":  {"birth", "date"},
	"bal":   {"balance"},
	"amt":   {"amount"},
	"orig":  {"original"},
	"cur":   {"current"},
	"curr":  {"current"},
	"tel":   {"phone"},
	"ph":    {"phone"},
	"mob":   {"mobile", "phone"},
	"cell":  {"phone"},
	"addr":  {"address"},
	"fname": {"first", "name"},
	"lname": {"last", "name"},
	"mi":    {"middle", "initial"},
	"pmt":   {"payment"},
	"dlq":   {"delinquent"},
	"zipcode": {"zip", "code"},
	"postal":  {"zip"},
}

// semanticPatterns gives a coarse type bonus when both names look like the
// same kind of data. Bonus values sit in the 0.7-0.8 band on purpose: a type
// match alone must never carry a pairing past the strict threshold.
var semanticPatterns = []struct {
	category string
	bonus    float64
	re       *regexp.Regexp
}{
	{"date", 0.8, regexp.MustCompile(`\b(date|dob|dt|birth|opened|closed|charge ?off)\b`)},
	{"amount", 0.75, regexp.MustCompile(`\b(amount|amt|balance|bal|principal|interest|fee|paid|due)\b`)},
	{"phone", 0.75, regexp.MustCompile(`\b(phone|tel|telephone|cell|mobile|mob|fax)\b`)},
	{"email", 0.8, regexp.MustCompile(`\b(email|e ?mail)\b`)},
	{"ssn", 0.8, regexp.MustCompile(`\b(ssn|social|security|tax ?id|tin)\b`)},
	{"zip", 0.7, regexp.MustCompile(`\b(zip|postal)\b`)},
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases, strips punctuation to spaces, and collapses
// whitespace so "Acct #" and "acct_no" compare on equal footing.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// expandTokens replaces known abbreviations with their canonical tokens.
func expandTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if syn, ok := tokenSynonyms[t]; ok {
			out = append(out, syn...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// tokensMatch reports whether two tokens count as the same word: identical,
// one containing the other, or within a Levenshtein distance below 30% of
// the longer token's length.
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return float64(dist) < 0.3*float64(maxLen)
}

// wordOverlapScore counts matched tokens over the larger token count of
// either side, after abbreviation expansion.
func wordOverlapScore(headerNorm, fieldNorm string) float64 {
	ht := expandTokens(strings.Fields(headerNorm))
	ft := expandTokens(strings.Fields(fieldNorm))
	if len(ht) == 0 || len(ft) == 0 {
		return 0
	}
	matched := 0
	used := make([]bool, len(ht))
	for _, f := range ft {
		for i, h := range ht {
			if used[i] {
				continue
			}
			if tokensMatch(f, h) {
				used[i] = true
				matched++
				break
			}
		}
	}
	denom := len(ht)
	if len(ft) > denom {
		denom = len(ft)
	}
	return float64(matched) / float64(denom)
}

// longestCommonSubstring returns the length of the longest common substring.
func longestCommonSubstring(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}

func substringScore(headerNorm, fieldNorm string) float64 {
	a := stripSpaces(headerNorm)
	b := stripSpaces(fieldNorm)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	lcs := longestCommonSubstring(a, b)
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	return float64(lcs) / float64(minLen)
}

func semanticScore(headerNorm, fieldNorm string) float64 {
	for _, p := range semanticPatterns {
		if p.re.MatchString(headerNorm) && p.re.MatchString(fieldNorm) {
			return p.bonus
		}
	}
	return 0
}

// abbrevScore compares the abbreviation-expanded, space-stripped forms.
func abbrevScore(headerNorm, fieldNorm string) float64 {
	h := stripSpaces(strings.Join(expandTokens(strings.Fields(headerNorm)), " "))
	f := stripSpaces(strings.Join(expandTokens(strings.Fields(fieldNorm)), " "))
	if h == "" || f == "" {
		return 0
	}
	if h == f {
		return 1.0
	}
	if strings.Contains(h, f) || strings.Contains(f, h) {
		return 1.0
	}
	return 0
}

// similarityScore is deterministic for a given (header, field) pair:
// 1.0 on normalized equality, 0.95 on equality after removing spaces,
// otherwise a weighted sum of the four component scores capped at 1.0.
func similarityScore(header, field string) float64 {
	h := normalizeName(header)
	f := normalizeName(field)
	if h == "" || f == "" {
		return 0
	}
	if h == f {
		return 1.0
	}
	if stripSpaces(h) == stripSpaces(f) {
		return 0.95
	}
	score := weightWordOverlap*wordOverlapScore(h, f) +
		weightSubstring*substringScore(h, f) +
		weightSemantic*semanticScore(h, f) +
		weightAbbrev*abbrevScore(h, f)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Dynamic multi-valued field bases and their header indicators
const (
	emailFieldBase = "email_primary"
	phoneFieldBase = "phone_primary"
)

func isEmailHeader(headerNorm string) bool {
	return strings.Contains(stripSpaces(headerNorm), "email")
}

func isPhoneHeader(headerNorm string) bool {
	for _, t := range expandTokens(strings.Fields(headerNorm)) {
		switch t {
		case "phone", "telephone", "mobile", "fax":
			return true
		}
	}
	return false
}

// MatchResult carries the chosen mapping plus the score each assignment won.
type MatchResult struct {
	Mapping map[string]string  `json:"mapping"`
	Scores  map[string]float64 `json:"scores"`
}

// MatchFields maps target field names to source headers. Two greedy passes:
// the first accepts scores >= 0.6, the second sweeps still-unmapped fields
// at >= 0.3. A header claimed once is never reassigned; fields are visited
// in declaration order and headers in file order, exactly once.
func MatchFields(headers, targetFields []string) map[string]string {
	return MatchFieldsDetailed(headers, targetFields).Mapping
}

// MatchFieldsDetailed is MatchFields plus per-field scores for the UI.
func MatchFieldsDetailed(headers, targetFields []string) MatchResult {
	res := MatchResult{
		Mapping: make(map[string]string),
		Scores:  make(map[string]float64),
	}
	claimed := make(map[string]bool, len(headers))

	// Multi-valued fields opt out of the single-field passes; their headers
	// are swept afterwards into sequential slots.
	multiBase := map[string]bool{}
	singleFields := make([]string, 0, len(targetFields))
	for _, f := range targetFields {
		if f == emailFieldBase || f == phoneFieldBase {
			multiBase[f] = true
			continue
		}
		singleFields = append(singleFields, f)
	}

	assignPass := func(threshold float64) {
		for _, field := range singleFields {
			if _, done := res.Mapping[field]; done {
				continue
			}
			bestHeader := ""
			bestScore := 0.0
			for _, h := range headers {
				if claimed[h] {
					continue
				}
				s := similarityScore(h, field)
				if s > bestScore {
					bestScore = s
					bestHeader = h
				}
			}
			if bestHeader != "" && bestScore >= threshold {
				res.Mapping[field] = bestHeader
				res.Scores[field] = bestScore
				claimed[bestHeader] = true
			}
		}
	}
	assignPass(matchThresholdStrict)
	assignPass(matchThresholdRelaxed)

	if multiBase[emailFieldBase] {
		assignMultiSlots(&res, claimed, headers, emailFieldBase, isEmailHeader)
	}
	if multiBase[phoneFieldBase] {
		assignMultiSlots(&res, claimed, headers, phoneFieldBase, isPhoneHeader)
	}
	return res
}

// assignMultiSlots maps every remaining indicator header to sequential
// slots: base, base_2, base_3, ... A source file may carry several email or
// phone columns and they all deserve a mapping.
func assignMultiSlots(res *MatchResult, claimed map[string]bool, headers []string, base string, indicator func(string) bool) {
	slot := 0
	for _, h := range headers {
		if claimed[h] {
			continue
		}
		if !indicator(normalizeName(h)) {
			continue
		}
		slot++
		field := base
		if slot > 1 {
			field = fmt.Sprintf("%s_%d", base, slot)
		}
		res.Mapping[field] = h
		res.Scores[field] = 1.0
		claimed[h] = true
	}
}

// ValidateRequiredMapped reports the first required field missing from the
// mapping or mapped to an empty header.
func ValidateRequiredMapped(mapping map[string]string, required []string) error {
	for _, f := range required {
		if strings.TrimSpace(mapping[f]) == "" {
			return &MappingError{Field: f}
		}
	}
	return nil
}
