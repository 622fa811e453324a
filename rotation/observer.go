package rotation

// Observer receives rotation telemetry, the same narrow-interface-plus-noop
// shape used throughout the rest of this module (see ke.Observer).
type Observer interface {
	RotationSucceeded()
	RotationFailed()
}

type noopObserver struct{}

func (noopObserver) RotationSucceeded() {}
func (noopObserver) RotationFailed()    {}

// NoopObserver discards every event.
var NoopObserver Observer = noopObserver{}
