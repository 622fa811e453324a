package ke

import (
	"log"
	"strconv"

	"github.com/Phala-Network/phala-nts-go/internal/bin"
	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

// HandshakeState accumulates response records as the handshake loop consumes them.
type HandshakeState struct {
	Finished      bool
	NextProtocols []uint16
	AEADScheme    []uint16
	Cookies       [][]byte
	NextServer    *string
	NextPort      *uint16
}

// ServerError wraps the error code carried by a server-sent Error record.
type ServerError struct {
	Code uint16
}

func (e *ServerError) Error() string {
	return "ke: server reported error code " + strconv.Itoa(int(e.Code))
}

// processRecord folds a decoded record into state. No record may be
// processed once state.Finished is true; the handshake loop enforces this
// by exiting as soon as it observes End-of-Message.
func processRecord(logger *log.Logger, r Record, state *HandshakeState) error {
	switch r.Type {
	case RecordEndOfMessage:
		state.Finished = true

	case RecordNextProtocolNegotiation:
		state.NextProtocols = append(state.NextProtocols, decodeU16List(r.Body)...)

	case RecordAEADAlgorithmNegotiation:
		state.AEADScheme = append(state.AEADScheme, decodeU16List(r.Body)...)

	case RecordNewCookie:
		state.Cookies = append(state.Cookies, append([]byte(nil), r.Body...))

	case RecordNTPv4Server:
		// Last value wins if the server sends this more than once. RFC 8915
		// forbids duplicates; this client accepts and does not validate,
		// matching the source behavior it was ported from.
		server := string(r.Body)
		state.NextServer = &server

	case RecordNTPv4Port:
		port := bin.U16BE(r.Body)
		state.NextPort = &port

	case RecordError:
		code := bin.U16BE(r.Body)
		return keerr.Wrap(keerr.StageServer, keerr.CodeServerError, &ServerError{Code: code})

	case RecordWarning:
		code := bin.U16BE(r.Body)
		logger.Printf("ke: server warning %d", code)
	}
	return nil
}

// assembleResult folds the terminal HandshakeState into an immutable result.
func assembleResult(host string, useIPv6 bool, state HandshakeState, keys NtsKeys) HandshakeResult {
	aead := uint16(0)
	if len(state.AEADScheme) > 0 {
		aead = state.AEADScheme[0]
	}
	server := host
	if state.NextServer != nil {
		server = *state.NextServer
	}
	port := uint16(123)
	if state.NextPort != nil {
		port = *state.NextPort
	}
	return HandshakeResult{
		Cookies:       state.Cookies,
		NextProtocols: state.NextProtocols,
		AEADScheme:    aead,
		NextServer:    server,
		NextPort:      port,
		Keys:          keys,
		UseIPv6:       useIPv6,
	}
}
