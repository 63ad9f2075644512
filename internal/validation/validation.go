package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city name is required")
	// ErrCityTooShort is returned when the city is shorter than the minimum length.
	ErrCityTooShort = errors.New("city name too short")
	// ErrCityTooLong is returned when the city exceeds the maximum length.
	ErrCityTooLong = errors.New("city name too long")
	// ErrCityInvalidChars is returned when the city contains disallowed characters.
	ErrCityInvalidChars = errors.New("city name contains invalid characters")
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes;
// non-positive disables a bound) and restricts to letters, digits, space and , - . '
// Returns the trimmed city. Case is preserved; history entries are case-sensitive.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
