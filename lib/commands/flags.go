package commands

import (
	"strings"
)

// Flags is a bitset of behavioral flags of a command.
type Flags uint64

const (
	SkipLocking       Flags = 1 << iota // do not acquire the key lock
	IgnoreReturnValues                  // the caller does not need the previous value
	SkipRemoteLookup                    // do not fetch the previous value from remote owners
	SkipCacheLoad                       // do not load the previous value from a store
	ForXSiteBackup                      // command replicates a write of another site
	ZeroLockAcquisitionTimeout          // try the key lock once, never wait
	CommandRetry                        // the command is a retry of an earlier attempt
	CacheModeLocal                      // execute on the local node only
)

var flagNames = []string{
	"SKIP_LOCKING",
	"IGNORE_RETURN_VALUES",
	"SKIP_REMOTE_LOOKUP",
	"SKIP_CACHE_LOAD",
	"FOR_XSITE_BACKUP",
	"ZERO_LOCK_ACQUISITION_TIMEOUT",
	"COMMAND_RETRY",
	"CACHE_MODE_LOCAL",
}

// Has reports whether all flags of f are set.
func (fs Flags) Has(f Flags) bool {
	return fs&f == f
}

// HasAny reports whether any flag of f is set.
func (fs Flags) HasAny(f Flags) bool {
	return fs&f != 0
}

func (fs Flags) With(f Flags) Flags {
	return fs | f
}

func (fs Flags) Without(f Flags) Flags {
	return fs &^ f
}

func (fs Flags) String() string {
	if fs == 0 {
		return "[]"
	}
	var names []string
	for i, name := range flagNames {
		if fs&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return "[" + strings.Join(names, ",") + "]"
}

// LoadType tells the pipeline whether the previous value must be available
// before the command is performed.
type LoadType uint8

const (
	DontLoad LoadType = iota // the previous value is not needed
	Primary                  // only the primary owner needs the previous value
	Owner                    // every owner needs the previous value
)

func (l LoadType) String() string {
	switch l {
	case DontLoad:
		return "DONT_LOAD"
	case Primary:
		return "PRIMARY"
	case Owner:
		return "OWNER"
	default:
		return "UNKNOWN"
	}
}
