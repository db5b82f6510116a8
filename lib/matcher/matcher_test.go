package matcher

import (
	"encoding/json"
	"testing"
)

var (
	v1 = []byte("v1")
	v2 = []byte("v2")
	v3 = []byte("v3")
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		matcher  ValueMatcher
		existing []byte
		expected []byte
		newValue []byte
		want     bool
	}{
		{"always/nil", MatchAlways, nil, nil, nil, true},
		{"always/values", MatchAlways, v1, v2, v3, true},

		{"expected/nil-nil", MatchExpected, nil, nil, v1, true},
		{"expected/equal", MatchExpected, v1, v1, v2, true},
		{"expected/differs", MatchExpected, v1, v2, v3, false},
		{"expected/existing-nil", MatchExpected, nil, v1, v2, false},
		{"expected/expected-nil", MatchExpected, v1, nil, v2, false},
		{"expected/empty-is-not-nil", MatchExpected, []byte{}, nil, v2, false},

		{"expected-or-new/expected", MatchExpectedOrNew, v1, v1, v2, true},
		{"expected-or-new/new", MatchExpectedOrNew, v2, v1, v2, true},
		{"expected-or-new/neither", MatchExpectedOrNew, v3, v1, v2, false},
		{"expected-or-new/retried-put-if-absent", MatchExpectedOrNew, v1, nil, v1, true},
		{"expected-or-new/nil-nil", MatchExpectedOrNew, nil, nil, v1, true},

		{"expected-or-null/nil", MatchExpectedOrNull, nil, v1, v2, true},
		{"expected-or-null/expected", MatchExpectedOrNull, v1, v1, v2, true},
		{"expected-or-null/differs", MatchExpectedOrNull, v2, v1, v3, false},

		{"non-null/nil", MatchNonNull, nil, nil, v1, false},
		{"non-null/value", MatchNonNull, v1, nil, v2, true},
		{"non-null/empty", MatchNonNull, []byte{}, nil, v2, true},

		{"never/nil", MatchNever, nil, nil, nil, false},
		{"never/equal", MatchNever, v1, v1, v1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Matches(tt.existing, tt.expected, tt.newValue); got != tt.want {
				t.Errorf("%s.Matches(%q, %q, %q) = %v, want %v", tt.matcher, tt.existing, tt.expected, tt.newValue, got, tt.want)
			}
		})
	}
}

func TestMatcherForRetry(t *testing.T) {
	tests := []struct {
		matcher ValueMatcher
		want    ValueMatcher
	}{
		{MatchAlways, MatchAlways},
		{MatchExpected, MatchExpectedOrNew},
		{MatchExpectedOrNew, MatchExpectedOrNew},
		{MatchExpectedOrNull, MatchExpectedOrNull},
		{MatchNonNull, MatchAlways},
		{MatchNever, MatchNever},
	}

	for _, tt := range tests {
		t.Run(tt.matcher.String(), func(t *testing.T) {
			if got := tt.matcher.MatcherForRetry(); got != tt.want {
				t.Errorf("MatcherForRetry() = %s, want %s", got, tt.want)
			}
		})
	}
}

// A write that succeeded must still succeed when retried on top of the state it
// produced itself. MatchExpectedOrNull is only used by removals, so its
// produced value is always nil.
func TestRetryKeepsSuccessfulWrite(t *testing.T) {
	candidates := [][]byte{nil, v1, v2, v3}

	for m := MatchAlways; m <= MatchNever; m++ {
		for _, existing := range candidates {
			for _, expected := range candidates {
				for _, newValue := range candidates {
					if m == MatchExpectedOrNull && newValue != nil {
						continue
					}
					if !m.Matches(existing, expected, newValue) {
						continue
					}
					if !m.MatcherForRetry().Matches(newValue, expected, newValue) {
						t.Errorf("%s: retry of a successful write (existing=%q expected=%q new=%q) fails", m, existing, expected, newValue)
					}
				}
			}
		}
	}
}

func TestRetryOfMatchExpected(t *testing.T) {
	// putIfAbsent applied "v1" but the ack was lost
	retry := MatchExpected.MatcherForRetry()
	if !retry.Matches(v1, nil, v1) {
		t.Errorf("%s must match the value written by the same operation", retry)
	}
	// a concurrent writer stored something else in between
	if retry.Matches(v2, nil, v1) {
		t.Errorf("%s must not match a third party value", retry)
	}
}

func TestJSON(t *testing.T) {
	for m := MatchAlways; m <= MatchNever; m++ {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal %s: %v", m, err)
		}
		var back ValueMatcher
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != m {
			t.Errorf("got %s, want %s", back, m)
		}
	}

	var m ValueMatcher
	if err := json.Unmarshal([]byte(`"MATCH_SOMETIMES"`), &m); err == nil {
		t.Errorf("expected an error for an unknown matcher")
	}
}
