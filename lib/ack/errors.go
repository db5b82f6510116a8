package ack

import (
	"errors"
)

// ErrStopped fails every pending entry when the collector is stopped.
var ErrStopped = errors.New("ack collector stopped")
