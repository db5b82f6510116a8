package invocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/lockmgr"
	"go.uber.org/goleak"
)

func newPipeline() *Pipeline {
	return NewPipeline(container.NewDataContainer(), lockmgr.NewLockManager(), 20*time.Millisecond)
}

func put(id uint64, key, value string, flags commands.Flags) *commands.PutKeyValueCommand {
	return commands.NewPutKeyValueCommand(commands.InvocationID{Address: "a", ID: id}, key, 0, []byte(value), container.NewMetadata(0), false, flags)
}

func TestInvoke(t *testing.T) {
	p := newPipeline()

	var hooked interface{}
	hook := func(ctx *Context, cmd commands.WriteCommand, result interface{}) error {
		if owner, locked := p.locks.Owner("k"); !locked || owner != cmd.InvocationID().String() {
			t.Errorf("hook must run while the key is locked")
		}
		hooked = ctx.LookupEntry("k").Value()
		return nil
	}

	if _, err := p.Invoke(NewLocalContext("a"), put(1, "k", "v1", 0), hook); err != nil {
		t.Fatal(err)
	}
	if string(hooked.([]byte)) != "v1" {
		t.Errorf("hook saw %v", hooked)
	}
	prev, err := p.Invoke(NewLocalContext("a"), put(2, "k", "v2", 0), nil)
	if err != nil || string(prev.([]byte)) != "v1" {
		t.Errorf("Invoke() = %v, %v", prev, err)
	}
	if v, ok := p.Read("k"); !ok || string(v) != "v2" {
		t.Errorf("Read() = %q, %v", v, ok)
	}
	if _, locked := p.locks.Owner("k"); locked {
		t.Errorf("lock still held after Invoke()")
	}
}

func TestInvokeLockTimeout(t *testing.T) {
	p := newPipeline()
	if err := p.locks.Lock("other", "k", 0); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.locks.Unlock("other", "k") }()

	_, err := p.Invoke(NewLocalContext("a"), put(1, "k", "v", 0), nil)
	var terr *commands.TimeoutError
	if !errors.As(err, &terr) || !errors.Is(err, commands.ErrTimeout) {
		t.Fatalf("Invoke() error = %v, want timeout", err)
	}

	// backups skip locking
	if _, err := p.Invoke(NewRemoteContext("b"), put(2, "k", "v", commands.SkipLocking), nil); err != nil {
		t.Errorf("Invoke() with SkipLocking error = %v", err)
	}

	tests := []struct {
		name    string
		flags   commands.Flags
		wantErr bool
	}{
		{"expiration reports timeout", 0, true},
		{"best effort expiration is suppressed", commands.ZeroLockAcquisitionTimeout, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := commands.NewRemoveExpiredCommand(commands.InvocationID{Address: "a", ID: 3}, "k", 0, nil, -1, tt.flags)
			result, err := p.Invoke(NewLocalContext("a"), cmd, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Invoke() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (result != false || cmd.IsSuccessful()) {
				t.Errorf("suppressed expiration: result %v, successful %v", result, cmd.IsSuccessful())
			}
		})
	}
}

func TestInvokeAsync(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPipeline()
	f := p.InvokeAsync(NewLocalContext("a"), put(1, "k", "v", 0), nil)
	if _, err := f.Get(context.Background()); err != nil {
		t.Fatal(err)
	}

	failing := commands.NewComputeCommand(commands.InvocationID{Address: "a", ID: 2}, "k", 0, "missing-function", nil, container.NewMetadata(0), false, 0)
	if _, err := p.InvokeAsync(NewLocalContext("a"), failing, nil).Get(context.Background()); !errors.Is(err, commands.ErrUnknownFunction) {
		t.Errorf("Get() error = %v", err)
	}
}

func TestRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRecords(time.Minute)
	defer r.Close()

	id := commands.InvocationID{Address: "a", ID: 7}
	if _, ok := r.Load(id); ok {
		t.Fatalf("unexpected record")
	}
	r.Store(id, Record{Successful: true, Result: []byte("prev")})
	rec, ok := r.Load(id)
	if !ok || !rec.Successful || string(rec.Result.([]byte)) != "prev" {
		t.Errorf("Load() = %+v, %v", rec, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestExpiredEntries(t *testing.T) {
	expired := func(p *Pipeline) {
		p.dc.Put("k", &container.Entry{
			Value:    []byte("old"),
			Metadata: container.Metadata{Lifespan: 10, Created: time.Now().UnixMilli() - 1000},
			Internal: container.InternalMetadata{Version: 3},
		})
	}
	id := func(n uint64) commands.InvocationID { return commands.InvocationID{Address: "a", ID: n} }
	md := container.NewMetadata(0)

	t.Run("read", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		if v, ok := p.Read("k"); ok {
			t.Errorf("Read() = %q, want absent", v)
		}
	})

	t.Run("put if absent applies", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		cmd := commands.NewPutKeyValueCommand(id(1), "k", 0, []byte("new"), md, true, 0)
		existing, err := p.Invoke(NewLocalContext("a"), cmd, nil)
		if err != nil || existing != nil || !cmd.IsSuccessful() {
			t.Fatalf("Invoke() = %v, %v, successful %v", existing, err, cmd.IsSuccessful())
		}
		e := p.dc.Get("k")
		if e == nil || string(e.Value) != "new" {
			t.Fatalf("stored entry = %v", e)
		}
		// versions keep counting across the expiration
		if e.Internal.Version != 4 {
			t.Errorf("version = %d, want 4", e.Internal.Version)
		}
	})

	t.Run("replace does not apply", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		cmd := commands.NewReplaceCommand(id(1), "k", 0, nil, []byte("new"), md, 0)
		prev, err := p.Invoke(NewLocalContext("a"), cmd, nil)
		if err != nil || prev != nil || cmd.IsSuccessful() {
			t.Errorf("Invoke() = %v, %v, successful %v", prev, err, cmd.IsSuccessful())
		}
	})

	t.Run("remove if does not apply", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		cmd := commands.NewRemoveCommand(id(1), "k", 0, []byte("old"), 0)
		removed, err := p.Invoke(NewLocalContext("a"), cmd, nil)
		if err != nil || removed != false {
			t.Errorf("Invoke() = %v, %v", removed, err)
		}
	})

	t.Run("remove expired sees the entry", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		cmd := commands.NewRemoveExpiredCommand(id(1), "k", 0, []byte("old"), 10, 0)
		removed, err := p.Invoke(NewLocalContext("a"), cmd, nil)
		if err != nil || removed != true {
			t.Errorf("Invoke() = %v, %v", removed, err)
		}
		if p.dc.Get("k") != nil {
			t.Errorf("expired entry not removed")
		}
	})

	t.Run("apply uses the stored entry", func(t *testing.T) {
		p := newPipeline()
		expired(p)
		cmd := commands.NewReplaceCommand(id(1), "k", 0, nil, []byte("new"), md, commands.SkipLocking)
		if _, err := p.Apply(NewRemoteContext("b"), cmd); err != nil {
			t.Fatal(err)
		}
		if v, ok := p.Read("k"); !ok || string(v) != "new" {
			t.Errorf("Read() = %q, %v", v, ok)
		}
	})
}
