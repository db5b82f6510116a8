// Package codec implements the byte oriented wire encoding used by all
// replicable commands.
//
// The format is deliberately simple and mirrors the framing used by the
// transport layer: fixed width big endian integers, length prefixed strings and
// byte slices. Byte slices carry a presence marker so that a nil value ("no
// value") survives a round trip and stays distinguishable from an empty value.
//
// Commands implement WriteTo(*Encoder) and ReadFrom(*Decoder) error. The
// decoder records the first error and turns every following read into a no-op,
// so callers only have to check Err() once at the end.
package codec
