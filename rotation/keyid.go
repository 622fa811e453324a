package rotation

import "github.com/Phala-Network/phala-nts-go/internal/bin"

// KeyID is a 4-byte big-endian identifier derived from a rotation epoch:
// the low 32 bits of the epoch in seconds.
type KeyID [4]byte

func newKeyID(epoch int64) KeyID {
	var id KeyID
	bin.PutU32BE(id[:], uint32(epoch))
	return id
}
