// Package matcher provides the value matching policy used by conditional write
// commands.
//
// A ValueMatcher decides whether a write should be applied, given the value
// currently stored for a key, the value the caller expected and the value the
// write is about to store. Each matcher also knows which matcher must be used
// when the same logical write is retried, because on a retry the caller can no
// longer tell whether a previous attempt already reached the data.
//
// Policy table:
//
//	Matcher                 matches(existing, expected, new)          MatcherForRetry()
//	MatchAlways             always                                    MatchAlways
//	MatchExpected           existing == expected                      MatchExpectedOrNew
//	MatchExpectedOrNew      existing == expected || existing == new   MatchExpectedOrNew
//	MatchExpectedOrNull     existing == nil || existing == expected   MatchExpectedOrNull
//	MatchNonNull            existing != nil                           MatchAlways
//	MatchNever              never                                     MatchNever
//
// Values are byte slices. A nil slice means "no value" and is different from an
// empty, non-nil slice.
package matcher
