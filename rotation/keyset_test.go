package rotation

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/Phala-Network/phala-nts-go/rotation/cache"
)

func fixedKey(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

func newTestRotor(t *testing.T) (*RotatingKeys, *cache.Map) {
	t.Helper()
	m := cache.NewMap()
	m.Set("test/1", fixedKey(1))
	m.Set("test/2", fixedKey(2))
	m.Set("test/3", fixedKey(3))
	m.Set("test/4", fixedKey(4))
	// epochs 0 and 5 are deliberately absent.

	r := New("test", 1, 1, 1, []byte{0, 32}, m)
	return r, m
}

// Exercises a window of forward=1/backward=1 around duration=1 with cache
// entries at epochs 1..4 and gaps at 0 and 5.
func TestRotateBasic(t *testing.T) {
	r, _ := newTestRotor(t)
	ctx := context.Background()

	if err := r.Rotate(ctx, 2); err != nil {
		t.Fatalf("rotate at now=2: %v", err)
	}
	oldLatest, _, ok := r.Latest()
	if !ok {
		t.Fatal("expected a latest key after rotating at now=2")
	}

	if err := r.Rotate(ctx, 3); err != nil {
		t.Fatalf("rotate at now=3: %v", err)
	}
	newLatest, _, ok := r.Latest()
	if !ok {
		t.Fatal("expected a latest key after rotating at now=3")
	}
	if oldLatest == newLatest {
		t.Fatalf("latest did not change between now=2 and now=3: %v", newLatest)
	}

	if err := r.Rotate(ctx, 1); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("rotate at now=1: want ErrCacheMiss, got %v", err)
	}
	if err := r.Rotate(ctx, 4); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("rotate at now=4: want ErrCacheMiss, got %v", err)
	}
}

// After rotating at now=3, the window has slid past epoch 1 and its KeyID
// must no longer be resolvable.
func TestRotateRetirement(t *testing.T) {
	r, _ := newTestRotor(t)
	ctx := context.Background()

	if err := r.Rotate(ctx, 2); err != nil {
		t.Fatalf("rotate at now=2: %v", err)
	}
	epoch1 := newKeyID(1)
	if _, ok := r.Lookup(epoch1); !ok {
		t.Fatal("expected epoch 1 to be present after rotating at now=2")
	}

	if err := r.Rotate(ctx, 3); err != nil {
		t.Fatalf("rotate at now=3: %v", err)
	}
	if _, ok := r.Lookup(epoch1); ok {
		t.Fatal("epoch 1 should have been retired after rotating at now=3")
	}
}

func TestRotatePartialFailureKeepsPriorEntries(t *testing.T) {
	r, _ := newTestRotor(t)
	ctx := context.Background()

	if err := r.Rotate(ctx, 2); err != nil {
		t.Fatalf("rotate at now=2: %v", err)
	}
	epoch2, priorWrap, ok := r.Latest()
	if !ok {
		t.Fatal("expected a latest entry after rotating at now=2")
	}

	// now=1 needs epoch 0, which is absent; the rotation must still leave
	// what was already installed for epoch 2 untouched.
	if err := r.Rotate(ctx, 1); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("rotate at now=1: want ErrCacheMiss, got %v", err)
	}
	wrap, ok := r.Lookup(epoch2)
	if !ok {
		t.Fatal("epoch 2 entry was removed by a partially-failed rotation")
	}
	if !bytes.Equal(wrap, priorWrap) {
		t.Fatal("epoch 2 entry was overwritten by a partially-failed rotation")
	}
}

func TestWrapIsHMACSHA256(t *testing.T) {
	r, _ := newTestRotor(t)
	raw := fixedKey(9)
	mac := hmac.New(sha256.New, r.MasterKey)
	mac.Write(raw)
	want := mac.Sum(nil)
	got := r.wrap(raw)
	if !bytes.Equal(want, got) {
		t.Fatal("wrap does not equal HMAC-SHA256(master key, raw)")
	}
	if len(got) != 32 {
		t.Fatalf("wrap output length = %d, want 32", len(got))
	}
}

func TestEpoch(t *testing.T) {
	cases := []struct {
		now, duration, offset, want int64
	}{
		{now: 2, duration: 1, offset: 0, want: 2},
		{now: 2, duration: 1, offset: 1, want: 3},
		{now: 2, duration: 1, offset: -1, want: 1},
		{now: 125, duration: 60, offset: 0, want: 120},
	}
	for _, c := range cases {
		if got := epoch(c.now, c.duration, c.offset); got != c.want {
			t.Errorf("epoch(%d, %d, %d) = %d, want %d", c.now, c.duration, c.offset, got, c.want)
		}
	}
}
