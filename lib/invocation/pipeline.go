package invocation

import (
	"errors"
	"time"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/future"
	"github.com/ValentinKolb/tKV/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("invocation")

// CommitHook runs after a command was committed, while its keys are locked.
type CommitHook func(ctx *Context, cmd commands.WriteCommand, result interface{}) error

// Pipeline executes commands against a data container.
type Pipeline struct {
	dc          *container.DataContainer
	locks       lockmgr.ILockManager
	lockTimeout time.Duration
}

func NewPipeline(dc *container.DataContainer, locks lockmgr.ILockManager, lockTimeout time.Duration) *Pipeline {
	return &Pipeline{dc: dc, locks: locks, lockTimeout: lockTimeout}
}

// Container returns the data container of the pipeline.
func (p *Pipeline) Container() *container.DataContainer {
	return p.dc
}

// Invoke executes cmd in ctx and returns its result. hook may be nil.
// Expired entries are absent for cmd unless it reads expired entries.
func (p *Pipeline) Invoke(ctx *Context, cmd commands.WriteCommand, hook CommitHook) (interface{}, error) {
	return p.invoke(ctx, cmd, hook, readsExpired(cmd))
}

// Apply executes a write whose outcome the primary owner already decided.
// Entries are used as stored, expired or not.
func (p *Pipeline) Apply(ctx *Context, cmd commands.WriteCommand) (interface{}, error) {
	return p.invoke(ctx, cmd, nil, true)
}

func (p *Pipeline) invoke(ctx *Context, cmd commands.WriteCommand, hook CommitHook, expired bool) (interface{}, error) {
	keys := cmd.AffectedKeys()

	if !cmd.Flags().Has(commands.SkipLocking) {
		owner := cmd.InvocationID().String()
		timeout := p.lockTimeout
		if cmd.Flags().Has(commands.ZeroLockAcquisitionTimeout) {
			timeout = 0
		}
		if err := p.locks.LockAll(owner, keys, timeout); err != nil {
			return p.onLockError(cmd, timeout, err)
		}
		defer p.locks.UnlockAll(owner, keys)
	}

	for _, key := range keys {
		ctx.wrap(p.dc, key, expired)
	}

	result, err := cmd.Perform(ctx)
	if err != nil {
		log.Debugf("%s %s failed: %v", cmd.CommandID(), cmd.InvocationID(), err)
		return nil, err
	}
	for _, key := range keys {
		ctx.entries[key].Commit(p.dc)
	}

	if hook != nil {
		if err := hook(ctx, cmd, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Locked locks the keys of cmd, wraps their entries into ctx and calls fn
// without performing cmd. It is used to replicate the current state of keys
// written by an earlier attempt of cmd.
func (p *Pipeline) Locked(ctx *Context, cmd commands.WriteCommand, fn func(ctx *Context) error) error {
	keys := cmd.AffectedKeys()
	owner := cmd.InvocationID().String()
	if err := p.locks.LockAll(owner, keys, p.lockTimeout); err != nil {
		_, err = p.onLockError(cmd, p.lockTimeout, err)
		return err
	}
	defer p.locks.UnlockAll(owner, keys)

	expired := readsExpired(cmd)
	for _, key := range keys {
		ctx.wrap(p.dc, key, expired)
	}
	return fn(ctx)
}

// readsExpired reports whether cmd operates on expired entries instead of
// seeing them as absent.
func readsExpired(cmd commands.WriteCommand) bool {
	r, ok := cmd.(interface{ ReadsExpired() bool })
	return ok && r.ReadsExpired()
}

// InvokeAsync executes cmd on a new goroutine.
func (p *Pipeline) InvokeAsync(ctx *Context, cmd commands.WriteCommand, hook CommitHook) *future.Future[interface{}] {
	f := future.New[interface{}]()
	go func() {
		result, err := p.Invoke(ctx, cmd, hook)
		if err != nil {
			f.CompleteExceptionally(err)
			return
		}
		f.Complete(result)
	}()
	return f
}

// Read returns the value of key. Locks are not taken, reads see the last
// committed value.
func (p *Pipeline) Read(key string) ([]byte, bool) {
	e := p.dc.Get(key)
	if e == nil {
		return nil, false
	}
	if e.Metadata.IsExpired(time.Now().UnixMilli()) {
		return nil, false
	}
	return e.Value, true
}

func (p *Pipeline) onLockError(cmd commands.WriteCommand, timeout time.Duration, err error) (interface{}, error) {
	if !errors.Is(err, lockmgr.ErrTimeout) {
		return nil, err
	}
	terr := &commands.TimeoutError{Op: "lock for " + cmd.InvocationID().String(), After: timeout, Err: err}
	if rex, ok := cmd.(*commands.RemoveExpiredCommand); ok {
		if rex.OnLockTimeout(terr) == nil {
			cmd.Fail()
			return false, nil
		}
	}
	return nil, terr
}
