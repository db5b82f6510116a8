// Package local implements an in-process RPC transport. Server transports are
// registered by endpoint name when they start listening, client transports of
// the same process call their handler directly. Requests are copied, so the
// handler never shares memory with the caller.
//
// It is used to run several nodes in one process, e.g. in tests.
package local
