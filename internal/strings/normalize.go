package strings

import "strings"

// IsBlank reports whether the input is empty or only whitespace.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// ContainsAnyLower reports whether the lowercased input contains any of the
// given lowercase substrings.
func ContainsAnyLower(value string, substrings ...string) bool {
	lowered := strings.ToLower(value)
	for _, sub := range substrings {
		if strings.Contains(lowered, sub) {
			return true
		}
	}
	return false
}

// FirstNonBlank returns the first value that is not blank, or "".
func FirstNonBlank(values ...string) string {
	for _, value := range values {
		if !IsBlank(value) {
			return value
		}
	}
	return ""
}
