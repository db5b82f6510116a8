package cluster

import (
	"context"
	"time"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/container"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// WriteOption configures a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	flags    commands.Flags
	lifespan time.Duration
}

// WithFlags adds flags to the write.
func WithFlags(f commands.Flags) WriteOption {
	return func(o *writeOptions) { o.flags = o.flags.With(f) }
}

// WithLifespan lets the written entry expire after d.
func WithLifespan(d time.Duration) WriteOption {
	return func(o *writeOptions) { o.lifespan = d }
}

func buildOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o writeOptions) metadata() container.Metadata {
	return container.NewMetadata(o.lifespan)
}

// segment returns the segment of key, -1 if no topology is installed.
func (n *Node) segment(key string) int {
	if t := n.topology.Current(); t != nil {
		return t.Segment(key)
	}
	return -1
}

func bytesOf(v interface{}) []byte {
	b, _ := v.([]byte)
	return b
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

// --------------------------------------------------------------------------
// Single Key
// --------------------------------------------------------------------------

// Get returns the value of key and whether it exists.
func (n *Node) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := n.get(ctx, key)
	return v, v != nil, err
}

// Put stores value under key and returns the previous value.
func (n *Node) Put(ctx context.Context, key string, value []byte, opts ...WriteOption) ([]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewPutKeyValueCommand(n.ids.Next(), key, n.segment(key), value, o.metadata(), false, o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), err
}

// PutIfAbsent stores value if key does not exist. It returns the existing value
// and false if the key exists.
func (n *Node) PutIfAbsent(ctx context.Context, key string, value []byte, opts ...WriteOption) ([]byte, bool, error) {
	o := buildOptions(opts)
	cmd := commands.NewPutKeyValueCommand(n.ids.Next(), key, n.segment(key), value, o.metadata(), true, o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), res.Successful, err
}

// Remove removes key and returns the previous value.
func (n *Node) Remove(ctx context.Context, key string, opts ...WriteOption) ([]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewRemoveCommand(n.ids.Next(), key, n.segment(key), nil, o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), err
}

// RemoveIf removes key if it holds expected.
func (n *Node) RemoveIf(ctx context.Context, key string, expected []byte, opts ...WriteOption) (bool, error) {
	o := buildOptions(opts)
	cmd := commands.NewRemoveCommand(n.ids.Next(), key, n.segment(key), expected, o.flags)
	res, err := n.invoke(ctx, cmd)
	return boolOf(res.Value), err
}

// RemoveExpired removes key if it still holds value with the given lifespan in
// milliseconds. A nil value or a negative lifespan skips the respective check.
func (n *Node) RemoveExpired(ctx context.Context, key string, value []byte, lifespan int64, opts ...WriteOption) (bool, error) {
	o := buildOptions(opts)
	cmd := commands.NewRemoveExpiredCommand(n.ids.Next(), key, n.segment(key), value, lifespan, o.flags)
	res, err := n.invoke(ctx, cmd)
	return boolOf(res.Value), err
}

// Replace stores value if key exists. It returns the previous value and whether
// the value was replaced.
func (n *Node) Replace(ctx context.Context, key string, value []byte, opts ...WriteOption) ([]byte, bool, error) {
	o := buildOptions(opts)
	cmd := commands.NewReplaceCommand(n.ids.Next(), key, n.segment(key), nil, value, o.metadata(), o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), res.Successful, err
}

// ReplaceIf stores value if key holds expected.
func (n *Node) ReplaceIf(ctx context.Context, key string, expected, value []byte, opts ...WriteOption) (bool, error) {
	o := buildOptions(opts)
	cmd := commands.NewReplaceCommand(n.ids.Next(), key, n.segment(key), expected, value, o.metadata(), o.flags)
	res, err := n.invoke(ctx, cmd)
	return boolOf(res.Value), err
}

// Compute stores the result of the registered compute function fn. A nil
// result removes the key.
func (n *Node) Compute(ctx context.Context, key, fn string, arg []byte, opts ...WriteOption) ([]byte, error) {
	return n.compute(ctx, key, fn, arg, false, opts)
}

// ComputeIfPresent is Compute for existing keys only.
func (n *Node) ComputeIfPresent(ctx context.Context, key, fn string, arg []byte, opts ...WriteOption) ([]byte, error) {
	return n.compute(ctx, key, fn, arg, true, opts)
}

func (n *Node) compute(ctx context.Context, key, fn string, arg []byte, ifPresent bool, opts []WriteOption) ([]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewComputeCommand(n.ids.Next(), key, n.segment(key), fn, arg, o.metadata(), ifPresent, o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), err
}

// ComputeIfAbsent stores the result of fn if key does not exist. It returns the
// existing or the computed value.
func (n *Node) ComputeIfAbsent(ctx context.Context, key, fn string, arg []byte, opts ...WriteOption) ([]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewComputeIfAbsentCommand(n.ids.Next(), key, n.segment(key), fn, arg, o.metadata(), o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), err
}

// Eval applies the registered entry function fn to key and returns its result.
func (n *Node) Eval(ctx context.Context, key, fn string, arg []byte, opts ...WriteOption) ([]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewReadWriteKeyCommand(n.ids.Next(), key, n.segment(key), fn, arg, o.flags)
	res, err := n.invoke(ctx, cmd)
	return bytesOf(res.Value), err
}

// EvalWriteOnly applies fn to key without reading the current value.
func (n *Node) EvalWriteOnly(ctx context.Context, key, fn string, arg []byte, opts ...WriteOption) error {
	o := buildOptions(opts)
	cmd := commands.NewWriteOnlyKeyCommand(n.ids.Next(), key, n.segment(key), fn, arg, o.flags)
	_, err := n.invoke(ctx, cmd)
	return err
}

// --------------------------------------------------------------------------
// Multi Key
// --------------------------------------------------------------------------

// PutAll stores all entries and returns the previous values of the keys that
// existed.
func (n *Node) PutAll(ctx context.Context, entries map[string][]byte, opts ...WriteOption) (map[string][]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewPutMapCommand(n.ids.Next(), entries, o.metadata(), o.flags)
	res, err := n.invoke(ctx, cmd)
	returns, _ := res.Value.(map[string][]byte)
	return returns, err
}

// EvalMany applies fn with arg to every key and returns the per key results.
func (n *Node) EvalMany(ctx context.Context, keys []string, fn string, arg []byte, opts ...WriteOption) (map[string][]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewReadWriteManyCommand(n.ids.Next(), keys, fn, arg, o.flags)
	res, err := n.invoke(ctx, cmd)
	returns, _ := res.Value.(map[string][]byte)
	return returns, err
}

// EvalManyEntries applies fn to every key with the argument of the key.
func (n *Node) EvalManyEntries(ctx context.Context, entries map[string][]byte, fn string, opts ...WriteOption) (map[string][]byte, error) {
	o := buildOptions(opts)
	cmd := commands.NewReadWriteManyEntriesCommand(n.ids.Next(), entries, fn, o.flags)
	res, err := n.invoke(ctx, cmd)
	returns, _ := res.Value.(map[string][]byte)
	return returns, err
}

// WriteOnlyMany applies fn with arg to every key without reading them.
func (n *Node) WriteOnlyMany(ctx context.Context, keys []string, fn string, arg []byte, opts ...WriteOption) error {
	o := buildOptions(opts)
	_, err := n.invoke(ctx, commands.NewWriteOnlyManyCommand(n.ids.Next(), keys, fn, arg, o.flags))
	return err
}

// WriteOnlyManyEntries applies fn to every key with the argument of the key
// without reading them.
func (n *Node) WriteOnlyManyEntries(ctx context.Context, entries map[string][]byte, fn string, opts ...WriteOption) error {
	o := buildOptions(opts)
	_, err := n.invoke(ctx, commands.NewWriteOnlyManyEntriesCommand(n.ids.Next(), entries, fn, o.flags))
	return err
}
