package ke

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Phala-Network/phala-nts-go/internal/bin"
)

// RecordType identifies the semantic type of an NTS-KE record body.
type RecordType uint16

const (
	RecordEndOfMessage            RecordType = 0
	RecordNextProtocolNegotiation RecordType = 1
	RecordError                   RecordType = 2
	RecordWarning                 RecordType = 3
	RecordAEADAlgorithmNegotiation RecordType = 4
	RecordNewCookie               RecordType = 5
	RecordNTPv4Server             RecordType = 6
	RecordNTPv4Port               RecordType = 7
)

// Well-known protocol and AEAD identifiers carried inside record bodies.
const (
	NTPv4             uint16 = 0
	AEADAESSIVCMAC256 uint16 = 15
)

const (
	headerLen   = 4
	maxBodyLen  = 0xFFFF
	criticalBit = uint16(1) << 15
)

var (
	// ErrUnknownCriticalRecord is returned when a record type this client
	// cannot interpret arrives with the critical bit set. Fatal to the handshake.
	ErrUnknownCriticalRecord = errors.New("ke: unknown record type with critical bit set")
	// ErrUnknownNotCriticalRecord is returned for an unrecognized record type
	// with the critical bit clear. The caller should skip it and keep reading.
	ErrUnknownNotCriticalRecord = errors.New("ke: unknown record type, critical bit clear")
)

// ParseError reports that a known record type's body violated its schema.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "ke: parse: " + e.Reason }

func newParseError(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Party is carried for symmetry with a future server-side implementation;
// client-side Deserialize accepts every record type listed in the table above
// regardless of which Party is passed.
type Party int

const (
	PartyClient Party = iota
	PartyServer
)

// Record is a decoded or to-be-encoded NTS-KE record frame.
type Record struct {
	Critical bool
	Type     RecordType
	Body     []byte
}

// Serialize packs r into wire format: a 4-byte big-endian header (critical
// bit in the high bit of the type word, followed by a 15-bit type and a
// 16-bit body length) followed by the body.
func Serialize(r Record) ([]byte, error) {
	if len(r.Body) > maxBodyLen {
		return nil, fmt.Errorf("ke: body too large: %d bytes", len(r.Body))
	}
	if uint16(r.Type)&criticalBit != 0 {
		return nil, fmt.Errorf("ke: record type out of range: %d", r.Type)
	}

	out := make([]byte, headerLen+len(r.Body))
	typ := uint16(r.Type)
	if r.Critical {
		typ |= criticalBit
	}
	bin.PutU16BE(out[0:2], typ)
	bin.PutU16BE(out[2:4], uint16(len(r.Body)))
	copy(out[headerLen:], r.Body)
	return out, nil
}

// Deserialize parses raw into a Record. raw must be exactly one frame: a
// 4-byte header followed by exactly the declared body length of bytes.
func Deserialize(party Party, raw []byte) (Record, error) {
	_ = party // carried for symmetry with a future server implementation

	if len(raw) < headerLen {
		return Record{}, newParseError("frame shorter than the %d-byte header", headerLen)
	}
	typ := bin.U16BE(raw[0:2])
	bodyLen := bin.U16BE(raw[2:4])
	critical := typ&criticalBit != 0
	typ &^= criticalBit

	if len(raw) != headerLen+int(bodyLen) {
		return Record{}, newParseError("frame length %d does not match header body length %d", len(raw), bodyLen)
	}
	body := raw[headerLen:]
	rt := RecordType(typ)

	switch rt {
	case RecordEndOfMessage:
		if len(body) != 0 {
			return Record{}, newParseError("end-of-message body must be empty")
		}
		if !critical {
			return Record{}, newParseError("end-of-message must have the critical bit set")
		}
	case RecordNextProtocolNegotiation, RecordAEADAlgorithmNegotiation:
		if len(body)%2 != 0 {
			return Record{}, newParseError("%s body length must be a multiple of 2, got %d", recordName(rt), len(body))
		}
	case RecordError, RecordWarning:
		if len(body) != 2 {
			return Record{}, newParseError("%s body must be exactly 2 bytes, got %d", recordName(rt), len(body))
		}
	case RecordNewCookie:
		// Any byte string, including empty, is accepted.
	case RecordNTPv4Server:
		if !utf8.Valid(body) {
			return Record{}, newParseError("server body must be valid UTF-8")
		}
	case RecordNTPv4Port:
		if len(body) != 2 {
			return Record{}, newParseError("port body must be exactly 2 bytes, got %d", len(body))
		}
	default:
		if critical {
			return Record{}, ErrUnknownCriticalRecord
		}
		return Record{}, ErrUnknownNotCriticalRecord
	}

	bodyCopy := append([]byte(nil), body...)
	return Record{Critical: critical, Type: rt, Body: bodyCopy}, nil
}

func recordName(t RecordType) string {
	switch t {
	case RecordEndOfMessage:
		return "end-of-message"
	case RecordNextProtocolNegotiation:
		return "next-protocol"
	case RecordError:
		return "error"
	case RecordWarning:
		return "warning"
	case RecordAEADAlgorithmNegotiation:
		return "aead"
	case RecordNewCookie:
		return "cookie"
	case RecordNTPv4Server:
		return "server"
	case RecordNTPv4Port:
		return "port"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

// decodeU16List parses body as a sequence of big-endian u16 values. Callers
// must already have checked that len(body) is even.
func decodeU16List(body []byte) []uint16 {
	out := make([]uint16, 0, len(body)/2)
	for i := 0; i+2 <= len(body); i += 2 {
		out = append(out, bin.U16BE(body[i:i+2]))
	}
	return out
}

func encodeU16List(ids []uint16) []byte {
	out := make([]byte, len(ids)*2)
	for i, id := range ids {
		bin.PutU16BE(out[i*2:i*2+2], id)
	}
	return out
}
