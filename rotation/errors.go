package rotation

import "errors"

// ErrCacheMiss is returned when Rotate completes but one or more window
// slots were absent from the cache. The rotation still installs what it
// could; the caller is alerted so an operator can investigate.
var ErrCacheMiss = errors.New("rotation: one or more cache keys were missing")

// ErrCacheTransport is returned when the underlying Getter itself failed,
// as distinct from the key simply being absent.
var ErrCacheTransport = errors.New("rotation: cache transport error")

// ErrClock is returned when now is before the Unix epoch.
var ErrClock = errors.New("rotation: now is before the epoch")
