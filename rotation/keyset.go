package rotation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Phala-Network/phala-nts-go/rotation/cache"
)

// RotatingKeys is the live, lock-guarded window of wrapped cookie keys.
// Many goroutines may call Lookup/Latest concurrently (NTP packet handlers
// resolving cookies); Rotate holds the write lock alone (the background
// ticker).
type RotatingKeys struct {
	Prefix          string
	Duration        int64
	ForwardPeriods  int64
	BackwardPeriods int64
	MasterKey       []byte
	Cache           cache.Getter
	Observer        Observer

	mu     sync.RWMutex
	latest KeyID
	keys   map[KeyID][]byte
}

// New constructs a RotatingKeys with an empty window. Rotate must be called
// at least once before Latest/Lookup return any data.
func New(prefix string, duration, forward, backward int64, masterKey []byte, getter cache.Getter) *RotatingKeys {
	return &RotatingKeys{
		Prefix:          prefix,
		Duration:        duration,
		ForwardPeriods:  forward,
		BackwardPeriods: backward,
		MasterKey:       masterKey,
		Cache:           getter,
		Observer:        NoopObserver,
		keys:            make(map[KeyID][]byte),
	}
}

func (r *RotatingKeys) observer() Observer {
	if r.Observer != nil {
		return r.Observer
	}
	return NoopObserver
}

// epoch computes the duration-aligned instant offset periods away from now:
// epoch(t, k) = (t/duration + k) * duration.
func epoch(now, duration, offset int64) int64 {
	return (now/duration + offset) * duration
}

func (r *RotatingKeys) wrap(raw []byte) []byte {
	mac := hmac.New(sha256.New, r.MasterKey)
	mac.Write(raw)
	return mac.Sum(nil)
}

type fetchResult struct {
	keyID KeyID
	raw   []byte
	found bool
}

// Rotate refreshes the window around now (Unix seconds), fetching every
// offset in [-BackwardPeriods, ForwardPeriods] from the cache concurrently,
// then installing the results under the write lock in one step so readers
// never observe a partially-updated map. A missing cache slot does not
// remove any existing entry at that KeyID; Rotate still installs everything
// it could fetch and returns ErrCacheMiss afterward.
func (r *RotatingKeys) Rotate(ctx context.Context, now int64) error {
	if now < 0 {
		return ErrClock
	}

	offsets := make([]int64, 0, r.ForwardPeriods+r.BackwardPeriods+1)
	for k := -r.BackwardPeriods; k <= r.ForwardPeriods; k++ {
		offsets = append(offsets, k)
	}

	// Every offset's cache fetch runs concurrently, but all of them finish
	// before the result is applied: g.Wait returns only the first error,
	// and only after every fetch has returned. A slot whose fetch failed
	// stays zero and is treated as absent, so a transport failure on one
	// slot never discards what the others already fetched.
	results := make([]fetchResult, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range offsets {
		i, k := i, k
		g.Go(func() error {
			e := epoch(now, r.Duration, k)
			key := fmt.Sprintf("%s/%d", r.Prefix, e)
			raw, ok, err := r.Cache.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCacheTransport, key, err)
			}
			results[i] = fetchResult{keyID: newKeyID(e), raw: raw, found: ok}
			return nil
		})
	}
	transportErr := g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	missed := false
	for _, res := range results {
		if !res.found {
			// One failure event per slot that could not be installed.
			missed = true
			r.observer().RotationFailed()
			continue
		}
		r.keys[res.keyID] = r.wrap(res.raw)
	}
	retired := newKeyID(epoch(now, r.Duration, -r.BackwardPeriods-1))
	delete(r.keys, retired)
	r.latest = newKeyID(epoch(now, r.Duration, 0))

	switch {
	case transportErr != nil:
		return transportErr
	case missed:
		return ErrCacheMiss
	default:
		r.observer().RotationSucceeded()
		return nil
	}
}

// Latest returns the current epoch's KeyID and wrapped key.
func (r *RotatingKeys) Latest() (KeyID, []byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.keys[r.latest]
	return r.latest, v, ok
}

// Lookup returns the wrapped key for a given KeyID, if still in the window.
func (r *RotatingKeys) Lookup(id KeyID) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.keys[id]
	return v, ok
}
