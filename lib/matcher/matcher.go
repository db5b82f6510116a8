package matcher

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueMatcher is a stateless policy deciding if a conditional write applies.
type ValueMatcher uint8

const (
	MatchAlways         ValueMatcher = iota // Always apply the write.
	MatchExpected                           // Apply only if the existing value equals the expected one.
	MatchExpectedOrNew                      // Apply if the existing value equals the expected or the new one.
	MatchExpectedOrNull                     // Apply if there is no value or it equals the expected one.
	MatchNonNull                            // Apply only if a value exists.
	MatchNever                              // Never apply the write.
)

// Matches reports whether a write with the given expected and new values may be
// applied on top of the existing value.
func (m ValueMatcher) Matches(existing, expected, newValue []byte) bool {
	switch m {
	case MatchAlways:
		return true
	case MatchExpected:
		return equal(existing, expected)
	case MatchExpectedOrNew:
		return equal(existing, expected) || equal(existing, newValue)
	case MatchExpectedOrNull:
		return existing == nil || equal(existing, expected)
	case MatchNonNull:
		return existing != nil
	default:
		return false
	}
}

// MatcherForRetry returns the matcher to use when the same write is retried.
func (m ValueMatcher) MatcherForRetry() ValueMatcher {
	switch m {
	case MatchExpected:
		return MatchExpectedOrNew
	case MatchNonNull:
		return MatchAlways
	default:
		return m
	}
}

// Valid reports whether m is one of the known matchers.
func (m ValueMatcher) Valid() bool {
	return m <= MatchNever
}

// String returns the string representation of a ValueMatcher.
func (m ValueMatcher) String() string {
	switch m {
	case MatchAlways:
		return "MATCH_ALWAYS"
	case MatchExpected:
		return "MATCH_EXPECTED"
	case MatchExpectedOrNew:
		return "MATCH_EXPECTED_OR_NEW"
	case MatchExpectedOrNull:
		return "MATCH_EXPECTED_OR_NULL"
	case MatchNonNull:
		return "MATCH_NON_NULL"
	case MatchNever:
		return "MATCH_NEVER"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// Parse converts the string form back into a ValueMatcher.
func Parse(s string) (ValueMatcher, error) {
	for m := MatchAlways; m <= MatchNever; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return MatchNever, fmt.Errorf("unknown value matcher: %s", s)
}

// MarshalJSON implements the json.Marshaller interface for ValueMatcher.
func (m ValueMatcher) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ValueMatcher.
func (m *ValueMatcher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// equal is a nil aware equality: nil only equals nil.
func equal(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(a, b)
}
