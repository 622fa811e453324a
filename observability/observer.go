// Package observability defines narrow, metric-oriented observer
// interfaces shared by the ke and rotation packages, each with a
// zero-cost no-op default so instrumentation stays opt-in.
package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

// HandshakeObserver receives NTS-KE client handshake telemetry.
type HandshakeObserver interface {
	HandshakeSucceeded(d time.Duration)
	HandshakeFailed(stage keerr.Stage, code keerr.Code)
}

// RotationObserver receives cookie key rotation telemetry.
type RotationObserver interface {
	RotationSucceeded()
	RotationFailed()
}

type noopHandshakeObserver struct{}

func (noopHandshakeObserver) HandshakeSucceeded(time.Duration)        {}
func (noopHandshakeObserver) HandshakeFailed(keerr.Stage, keerr.Code) {}

type noopRotationObserver struct{}

func (noopRotationObserver) RotationSucceeded() {}
func (noopRotationObserver) RotationFailed()    {}

// NoopHandshakeObserver is a zero-cost observer used when metrics are disabled.
var NoopHandshakeObserver HandshakeObserver = noopHandshakeObserver{}

// NoopRotationObserver is a zero-cost observer used when metrics are disabled.
var NoopRotationObserver RotationObserver = noopRotationObserver{}

// AtomicHandshakeObserver swaps its delegate at runtime, so metrics export
// can be toggled without restarting any in-flight handshake.
type AtomicHandshakeObserver struct {
	once sync.Once
	v    atomic.Value
}

type handshakeObserverHolder struct {
	obs HandshakeObserver
}

// NewAtomicHandshakeObserver returns an initialized atomic observer.
func NewAtomicHandshakeObserver() *AtomicHandshakeObserver {
	a := &AtomicHandshakeObserver{}
	a.once.Do(func() { a.v.Store(&handshakeObserverHolder{obs: NoopHandshakeObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicHandshakeObserver) Set(obs HandshakeObserver) {
	if obs == nil {
		obs = NoopHandshakeObserver
	}
	a.once.Do(func() { a.v.Store(&handshakeObserverHolder{obs: NoopHandshakeObserver}) })
	a.v.Store(&handshakeObserverHolder{obs: obs})
}

func (a *AtomicHandshakeObserver) load() HandshakeObserver {
	a.once.Do(func() { a.v.Store(&handshakeObserverHolder{obs: NoopHandshakeObserver}) })
	return a.v.Load().(*handshakeObserverHolder).obs
}

func (a *AtomicHandshakeObserver) HandshakeSucceeded(d time.Duration) { a.load().HandshakeSucceeded(d) }
func (a *AtomicHandshakeObserver) HandshakeFailed(stage keerr.Stage, code keerr.Code) {
	a.load().HandshakeFailed(stage, code)
}

// AtomicRotationObserver swaps its delegate at runtime.
type AtomicRotationObserver struct {
	once sync.Once
	v    atomic.Value
}

type rotationObserverHolder struct {
	obs RotationObserver
}

// NewAtomicRotationObserver returns an initialized atomic observer.
func NewAtomicRotationObserver() *AtomicRotationObserver {
	a := &AtomicRotationObserver{}
	a.once.Do(func() { a.v.Store(&rotationObserverHolder{obs: NoopRotationObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicRotationObserver) Set(obs RotationObserver) {
	if obs == nil {
		obs = NoopRotationObserver
	}
	a.once.Do(func() { a.v.Store(&rotationObserverHolder{obs: NoopRotationObserver}) })
	a.v.Store(&rotationObserverHolder{obs: obs})
}

func (a *AtomicRotationObserver) load() RotationObserver {
	a.once.Do(func() { a.v.Store(&rotationObserverHolder{obs: NoopRotationObserver}) })
	return a.v.Load().(*rotationObserverHolder).obs
}

func (a *AtomicRotationObserver) RotationSucceeded() { a.load().RotationSucceeded() }
func (a *AtomicRotationObserver) RotationFailed()    { a.load().RotationFailed() }
