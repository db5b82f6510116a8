package commands

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/puzpuzpuz/xsync/v3"
)

// Functions can not be sent over the wire, commands refer to them by name.
// Every node of a cluster must register the same functions under the same
// names, and functions must be deterministic: backup owners of multi key
// functional commands run them again.

// ComputeFunction computes the new value of key from its current value (nil
// if absent) and an argument. Returning nil removes the key.
type ComputeFunction func(key string, current, arg []byte) []byte

// EntryFunction reads and writes one entry through view and returns a result.
type EntryFunction func(view *EntryView, arg []byte) []byte

var (
	computeFunctions = xsync.NewMapOf[string, ComputeFunction]()
	entryFunctions   = xsync.NewMapOf[string, EntryFunction]()
)

// RegisterCompute registers fn under name, replacing an earlier registration.
func RegisterCompute(name string, fn ComputeFunction) {
	computeFunctions.Store(name, fn)
}

// RegisterEntryFunction registers fn under name, replacing an earlier registration.
func RegisterEntryFunction(name string, fn EntryFunction) {
	entryFunctions.Store(name, fn)
}

func LookupCompute(name string) (ComputeFunction, error) {
	fn, ok := computeFunctions.Load(name)
	if !ok {
		return nil, fmt.Errorf("compute function %q: %w", name, ErrUnknownFunction)
	}
	return fn, nil
}

func LookupEntryFunction(name string) (EntryFunction, error) {
	fn, ok := entryFunctions.Load(name)
	if !ok {
		return nil, fmt.Errorf("entry function %q: %w", name, ErrUnknownFunction)
	}
	return fn, nil
}

// --------------------------------------------------------------------------
// Entry View
// --------------------------------------------------------------------------

// EntryView is the view of one entry handed to an entry function. Write only
// commands hand out views that can not read.
type EntryView struct {
	entry    *container.MVCCEntry
	readable bool
}

func (v *EntryView) Key() string {
	return v.entry.Key()
}

// Find returns the current value. It always reports false on write only views.
func (v *EntryView) Find() ([]byte, bool) {
	if !v.readable || !v.entry.Exists() {
		return nil, false
	}
	return v.entry.Value(), true
}

func (v *EntryView) Set(value []byte) {
	v.entry.SetValue(value)
}

func (v *EntryView) Remove() {
	v.entry.Remove()
}

// --------------------------------------------------------------------------
// Builtin Functions
// --------------------------------------------------------------------------

// Names of the functions every node registers.
const (
	FnAppend    = "append"      // compute: current + arg
	FnIncrement = "increment"   // compute: decimal current + decimal arg (default 1)
	FnSet       = "set"         // entry: set arg, return nothing
	FnGetAndSet = "get-and-set" // entry: set arg, return the previous value
	FnDelete    = "delete"      // entry: remove, return the removed value
	FnGet       = "get"         // entry: return the value
)

func init() {
	RegisterCompute(FnAppend, func(_ string, current, arg []byte) []byte {
		out := make([]byte, 0, len(current)+len(arg))
		return append(append(out, current...), arg...)
	})
	RegisterCompute(FnIncrement, func(_ string, current, arg []byte) []byte {
		delta := int64(1)
		if len(arg) > 0 {
			if d, err := strconv.ParseInt(string(arg), 10, 64); err == nil {
				delta = d
			}
		}
		var n int64
		if len(current) > 0 {
			n, _ = strconv.ParseInt(string(bytes.TrimSpace(current)), 10, 64)
		}
		return []byte(strconv.FormatInt(n+delta, 10))
	})

	RegisterEntryFunction(FnSet, func(view *EntryView, arg []byte) []byte {
		view.Set(arg)
		return nil
	})
	RegisterEntryFunction(FnGetAndSet, func(view *EntryView, arg []byte) []byte {
		prev, _ := view.Find()
		view.Set(arg)
		return prev
	})
	RegisterEntryFunction(FnDelete, func(view *EntryView, _ []byte) []byte {
		prev, _ := view.Find()
		view.Remove()
		return prev
	})
	RegisterEntryFunction(FnGet, func(view *EntryView, _ []byte) []byte {
		v, _ := view.Find()
		return v
	})
}
