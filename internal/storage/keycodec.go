package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator joins encoded components in the delimited key form.
const PathSeparator = "/"

const (
	// intWidth is the zero-padded width of encoded integers. It fits every
	// safe integer and keeps lexical order equal to numeric order for
	// non-negative values.
	intWidth = 16
	// escapeMark prefixes strings that would otherwise decode as a boolean
	// or an integer.
	escapeMark = '\''
)

// EncodePart converts one key component to its string form.
func EncodePart(p any) (string, error) {
	v, err := NormalizePart(p)
	if err != nil {
		return "", invalidKey(err.Error())
	}
	switch v := v.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		if v < 0 {
			return fmt.Sprintf("-%0*d", intWidth, -v), nil
		}
		return fmt.Sprintf("%0*d", intWidth, v), nil
	default:
		s := v.(string)
		if s[0] == escapeMark || !isPlainString(s) {
			return string(escapeMark) + s, nil
		}
		return s, nil
	}
}

// DecodePart converts an encoded component back. It never fails: anything
// that is not a boolean or integer form is a string.
func DecodePart(s string) any {
	if len(s) > 0 && s[0] == escapeMark {
		return s[1:]
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, ok := parseIntForm(s); ok {
		return n
	}
	return s
}

// EncodeParts converts a key to its list of string components.
func EncodeParts(key Key) ([]string, error) {
	parts := make([]string, len(key))
	for i, p := range key {
		s, err := EncodePart(p)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return parts, nil
}

// DecodeParts converts string components back to a key.
func DecodeParts(parts []string) Key {
	key := make(Key, len(parts))
	for i, s := range parts {
		key[i] = DecodePart(s)
	}
	return key
}

// EncodePath returns the delimited single-string form of a key.
func EncodePath(key Key) (string, error) {
	parts, err := EncodeParts(key)
	if err != nil {
		return "", err
	}
	return strings.Join(parts, PathSeparator), nil
}

// DecodePath parses the delimited form. Empty segments are skipped, so ""
// and "/" both decode to the root key.
func DecodePath(s string) Key {
	var parts []string
	for _, p := range strings.Split(s, PathSeparator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return DecodeParts(parts)
}

// isPlainString reports whether s decodes back to itself without escaping.
func isPlainString(s string) bool {
	if s == "true" || s == "false" {
		return false
	}
	_, isInt := parseIntForm(s)
	return !isInt
}

// parseIntForm recognizes the fixed-width integer forms produced by
// EncodePart.
func parseIntForm(s string) (int, bool) {
	digits := s
	if strings.HasPrefix(s, "-") {
		digits = s[1:]
	}
	if len(digits) != intWidth {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n > MaxSafeInteger || n < -MaxSafeInteger {
		return 0, false
	}
	return int(n), true
}
