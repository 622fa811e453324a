package ke

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/Phala-Network/phala-nts-go/internal/bin"
	"github.com/Phala-Network/phala-nts-go/internal/contextutil"
	"github.com/Phala-Network/phala-nts-go/internal/defaults"
	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

const (
	alpnProtocol  = "ntske/1"
	exporterLabel = "EXPORTER-network-time-security"
	exporterLen   = 32
)

// NtsKeys is the symmetric key pair exported from the TLS session: one key
// for client-to-server traffic, one for server-to-client.
type NtsKeys struct {
	C2S []byte
	S2C []byte
}

// HandshakeResult is the final, immutable outcome of a successful handshake.
type HandshakeResult struct {
	Cookies       [][]byte
	NextProtocols []uint16
	AEADScheme    uint16
	NextServer    string
	NextPort      uint16
	Keys          NtsKeys
	UseIPv6       bool
}

// ClientConfig configures a single NTS-KE handshake attempt.
type ClientConfig struct {
	Host    string
	Port    uint16 // 0 selects defaults.DefaultKEPort
	UseIPv6 bool

	// Resolver overrides address resolution; nil uses net.DefaultResolver.
	Resolver *net.Resolver
	// Logger receives warning records and low-level diagnostics; nil discards them.
	Logger *log.Logger
	// Observer receives handshake telemetry; nil uses NoopObserver.
	Observer Observer
	// RootCAs overrides the certificate pool used to verify the server;
	// nil uses the host's system pool. Not a substitute for certificate
	// pinning, which stays out of scope; this only lets callers point at
	// a private or test CA.
	RootCAs *x509.CertPool
}

func (c ClientConfig) port() uint16 {
	if c.Port != 0 {
		return c.Port
	}
	return defaults.DefaultKEPort
}

func (c ClientConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(io.Discard, "", 0)
}

func (c ClientConfig) observer() Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return NoopObserver
}

// RunHandshake executes the NTS-KE handshake end to end: resolve, connect,
// TLS 1.3 negotiate, exchange records, export keys. It returns the
// assembled result, or a *keerr.Error describing which stage failed.
func RunHandshake(ctx context.Context, cfg ClientConfig) (result HandshakeResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.logger()
	obs := cfg.observer()
	start := time.Now()

	defer func() {
		if err != nil {
			var ke *keerr.Error
			if errors.As(err, &ke) {
				obs.HandshakeFailed(ke.Stage, ke.Code)
			}
			return
		}
		obs.HandshakeSucceeded(time.Since(start))
	}()

	addr, err := resolveAddr(ctx, cfg.Resolver, cfg.Host, cfg.port(), cfg.UseIPv6)
	if err != nil {
		return HandshakeResult{}, err
	}

	connectCtx, cancel := contextutil.WithTimeout(ctx, defaults.IOTimeout)
	defer cancel()
	rawConn, err := (&net.Dialer{Timeout: defaults.IOTimeout}).DialContext(connectCtx, "tcp", addr)
	if err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageConnect, keerr.CodeConnectFailure, err)
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName: cfg.Host,
		NextProtos: []string{alpnProtocol},
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
		RootCAs:    cfg.RootCAs,
	})

	if err := rawConn.SetDeadline(time.Now().Add(defaults.IOTimeout)); err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageConnect, keerr.CodeConnectFailure, err)
	}
	handshakeCtx, handshakeCancel := contextutil.WithTimeout(ctx, defaults.IOTimeout)
	defer handshakeCancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageTLS, keerr.CodeTLSFailure, err)
	}

	cs := tlsConn.ConnectionState()
	if cs.NegotiatedProtocol != alpnProtocol {
		return HandshakeResult{}, keerr.Wrap(keerr.StageTLS, keerr.CodeTLSFailure,
			fmt.Errorf("server negotiated ALPN %q, want %q", cs.NegotiatedProtocol, alpnProtocol))
	}

	if err := rawConn.SetDeadline(time.Now().Add(defaults.IOTimeout)); err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageIO, keerr.CodeIOFailure, err)
	}
	if err := writeClientRecords(tlsConn); err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageIO, keerr.CodeIOFailure, err)
	}

	// Export keying material now, before reading any server records: the
	// client only ever offers NTPv4 + AEAD_AES_SIV_CMAC_256, so the
	// exporter context is already fully determined by what was just sent.
	// A server that negotiated differently would produce cookies this
	// client can't use with the keys derived here.
	keys, err := exportKeys(cs)
	if err != nil {
		return HandshakeResult{}, keerr.Wrap(keerr.StageExporter, keerr.CodeExporterFailure, err)
	}

	state, err := readResponse(logger, tlsConn)
	if err != nil {
		return HandshakeResult{}, err
	}

	// Half-close the write side; the read side closes when rawConn is
	// dropped via the deferred Close above.
	_ = tlsConn.CloseWrite()

	return assembleResult(cfg.Host, cfg.UseIPv6, state, keys), nil
}

func writeClientRecords(w io.Writer) error {
	nextProto, err := Serialize(Record{Critical: true, Type: RecordNextProtocolNegotiation, Body: encodeU16List([]uint16{NTPv4})})
	if err != nil {
		return err
	}
	aead, err := Serialize(Record{Critical: true, Type: RecordAEADAlgorithmNegotiation, Body: encodeU16List([]uint16{AEADAESSIVCMAC256})})
	if err != nil {
		return err
	}
	eom, err := Serialize(Record{Critical: true, Type: RecordEndOfMessage})
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(nextProto)+len(aead)+len(eom))
	buf = append(buf, nextProto...)
	buf = append(buf, aead...)
	buf = append(buf, eom...)
	_, err = w.Write(buf)
	return err
}

func exportKeys(cs tls.ConnectionState) (NtsKeys, error) {
	c2sCtx := exporterContext(NTPv4, AEADAESSIVCMAC256, 0x00)
	s2cCtx := exporterContext(NTPv4, AEADAESSIVCMAC256, 0x01)

	c2s, err := cs.ExportKeyingMaterial(exporterLabel, c2sCtx, exporterLen)
	if err != nil {
		return NtsKeys{}, err
	}
	s2c, err := cs.ExportKeyingMaterial(exporterLabel, s2cCtx, exporterLen)
	if err != nil {
		return NtsKeys{}, err
	}
	return NtsKeys{C2S: c2s, S2C: s2c}, nil
}

func exporterContext(nextProto, aead uint16, direction byte) []byte {
	ctx := make([]byte, 5)
	bin.PutU16BE(ctx[0:2], nextProto)
	bin.PutU16BE(ctx[2:4], aead)
	ctx[4] = direction
	return ctx
}

func readResponse(logger *log.Logger, r io.Reader) (HandshakeState, error) {
	var state HandshakeState
	for !state.Finished {
		// Every record read gets its own defaults.IOTimeout deadline.
		if dc, ok := r.(interface{ SetReadDeadline(time.Time) error }); ok {
			if err := dc.SetReadDeadline(time.Now().Add(defaults.IOTimeout)); err != nil {
				return state, keerr.Wrap(keerr.StageIO, keerr.CodeIOFailure, err)
			}
		}
		header := make([]byte, headerLen)
		if _, err := io.ReadFull(r, header); err != nil {
			return state, keerr.Wrap(keerr.StageIO, keerr.CodeIOFailure, err)
		}
		bodyLen := bin.U16BE(header[2:4])
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := io.ReadFull(r, body); err != nil {
				return state, keerr.Wrap(keerr.StageIO, keerr.CodeIOFailure, err)
			}
		}
		raw := append(header, body...)

		rec, err := Deserialize(PartyClient, raw)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnknownNotCriticalRecord):
				logger.Printf("ke: skipping unknown non-critical record")
				continue
			case errors.Is(err, ErrUnknownCriticalRecord):
				return state, keerr.Wrap(keerr.StageParse, keerr.CodeUnknownCriticalRecord, err)
			default:
				return state, keerr.Wrap(keerr.StageParse, keerr.CodeParseFailure, err)
			}
		}
		if err := processRecord(logger, rec, &state); err != nil {
			return state, err
		}
	}
	return state, nil
}
