package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxSafeInteger is the largest magnitude an integer key component may have.
const MaxSafeInteger = 1<<53 - 1

// Key is a hierarchical storage key. Components are strings, booleans or
// integers in [-MaxSafeInteger, MaxSafeInteger]. The empty key is the root
// of the hierarchy: it is a valid prefix but never holds an item.
type Key []any

// Validate checks every component of the key.
func (k Key) Validate() error {
	for i, p := range k {
		if _, err := NormalizePart(p); err != nil {
			return invalidKey(fmt.Sprintf("component %d: %v", i, err))
		}
	}
	return nil
}

// IsRoot reports whether k is the empty key.
func (k Key) IsRoot() bool {
	return len(k) == 0
}

// Equal reports whether both keys have the same components. Integers of
// different Go types compare by value.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	return other.HasPrefix(k)
}

// HasPrefix reports whether prefix is a (not necessarily proper) prefix of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		a, errA := NormalizePart(p)
		b, errB := NormalizePart(k[i])
		if errA != nil || errB != nil || a != b {
			return false
		}
	}
	return true
}

// Append returns a new key made of k followed by parts.
func (k Key) Append(parts ...any) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// Clone returns a copy of k.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	return append(Key{}, k...)
}

// Rebase replaces the leading from components of k with to. k must have
// from as a prefix.
func (k Key) Rebase(from, to Key) Key {
	return to.Append(k[len(from):]...)
}

// First returns the stringified first component, used for prefix routing.
func (k Key) First() (string, bool) {
	if len(k) == 0 {
		return "", false
	}
	return PartString(k[0]), true
}

// String returns the delimited form of the key, or a debug rendering when
// the key is invalid.
func (k Key) String() string {
	s, err := EncodePath(k)
	if err != nil {
		return fmt.Sprintf("%v", []any(k))
	}
	return s
}

// UnmarshalJSON decodes a JSON array into a key, turning integral numbers
// into int components.
func (k *Key) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Key, len(raw))
	for i, p := range raw {
		if n, ok := p.(json.Number); ok {
			v, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return invalidKey(fmt.Sprintf("component %d: %q is not an integer", i, n))
			}
			out[i] = int(v)
			continue
		}
		out[i] = p
	}
	*k = out
	return out.Validate()
}

// PartString stringifies one key component.
func PartString(p any) string {
	v, err := NormalizePart(p)
	if err != nil {
		return fmt.Sprint(p)
	}
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return v.(string)
	}
}

// NormalizePart returns the canonical form of a component: string, bool or
// int64.
func NormalizePart(p any) (any, error) {
	var n int64
	switch v := p.(type) {
	case string:
		if err := checkString(v); err != nil {
			return nil, err
		}
		return v, nil
	case bool:
		return v, nil
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		if uint64(v) > MaxSafeInteger {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > MaxSafeInteger {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("unsupported component type %T", p)
	}
	if n > MaxSafeInteger || n < -MaxSafeInteger {
		return nil, fmt.Errorf("integer %d out of range", n)
	}
	return n, nil
}

func checkString(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty string")
	case s == "." || s == "..":
		return fmt.Errorf("%q is reserved", s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%q contains a path separator or NUL", s)
	}
	return nil
}
