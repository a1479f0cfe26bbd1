package domain

import (
	"strings"
)

// genderCodes is the categorical encoding table for the gender feature.
// It must match the encoding used when the stage-1 pipeline was trained;
// a skew between training and inference silently corrupts model input, so
// unrecognized values fail loudly instead of defaulting.
//
// Encoding version 1: Male=1, Female=0 (per the stage-1 training artifact).
var genderCodes = map[string]float64{
	"male":   1,
	"female": 0,
}

// EncodeGender maps a gender label to its trained numeric code.
// Matching is case-insensitive over the enumerated set; any other value
// returns an UnknownCategoryError.
func EncodeGender(gender string) (float64, error) {
	code, ok := genderCodes[strings.ToLower(strings.TrimSpace(gender))]
	if !ok {
		return 0, &UnknownCategoryError{Field: "gender", Value: gender}
	}
	return code, nil
}

// RecognizedGenders returns the enumerated gender labels, for error messages
// and API documentation.
func RecognizedGenders() []string {
	return []string{"Male", "Female"}
}

// apoeAlleles are the APOE allele symbols that may appear in a genotype pair.
const apoeAlleles = "234"

// ParseAPOE4Count derives the APOE epsilon-4 allele count (0, 1, or 2) from a
// genotype string such as "3/4". Recognized forms are exactly two alleles
// from {2,3,4} separated by a slash. Anything else returns an
// UnknownCategoryError: a malformed genotype is treated as an unrecognized
// categorical value rather than silently defaulting to zero copies.
func ParseAPOE4Count(genotype string) (int, error) {
	g := strings.TrimSpace(genotype)
	if len(g) != 3 || g[1] != '/' ||
		!strings.ContainsRune(apoeAlleles, rune(g[0])) ||
		!strings.ContainsRune(apoeAlleles, rune(g[2])) {
		return 0, &UnknownCategoryError{Field: "genotype", Value: genotype}
	}
	return strings.Count(g, "4"), nil
}
