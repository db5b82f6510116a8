package invocation

import (
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/ValentinKolb/tKV/lib/commands"
)

// Record is the outcome of an executed command.
type Record struct {
	Successful bool
	Result     interface{}
}

// Records remembers outcomes by invocation id for a limited time.
type Records struct {
	cache *ttlcache.Cache
}

func NewRecords(ttl time.Duration) *Records {
	c := ttlcache.NewCache()
	c.SetTTL(ttl)
	return &Records{cache: c}
}

func (r *Records) Store(id commands.InvocationID, rec Record) {
	r.cache.Set(id.String(), rec)
}

// Load returns the record of id if it did not expire yet.
func (r *Records) Load(id commands.InvocationID) (Record, bool) {
	v, ok := r.cache.Get(id.String())
	if !ok {
		return Record{}, false
	}
	rec, ok := v.(Record)
	return rec, ok
}

func (r *Records) Len() int {
	return r.cache.Count()
}

// Close stops the expiration goroutine of the cache.
func (r *Records) Close() {
	r.cache.Close()
}
