// Package cache abstracts the shared key-value store that backs the
// rotation engine's epoch-keyed raw cookie keys. The reference deployment
// is memcache; that transport is an external collaborator and is never
// vendored here.
package cache

import "context"

// Getter fetches the raw value for key, reporting absence rather than an
// error when the key is simply not present.
type Getter interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
}
