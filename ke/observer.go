package ke

import (
	"time"

	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

// Observer receives handshake telemetry events, the same shape as the
// teacher's observability.TunnelObserver: a narrow interface with a
// zero-cost no-op default so metrics are opt-in.
type Observer interface {
	HandshakeSucceeded(d time.Duration)
	HandshakeFailed(stage keerr.Stage, code keerr.Code)
}

type noopObserver struct{}

func (noopObserver) HandshakeSucceeded(time.Duration)       {}
func (noopObserver) HandshakeFailed(keerr.Stage, keerr.Code) {}

// NoopObserver discards every event.
var NoopObserver Observer = noopObserver{}
