package ke

import (
	"bytes"
	"errors"
	"testing"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	cases := []Record{
		{Critical: true, Type: RecordEndOfMessage},
		{Critical: true, Type: RecordNextProtocolNegotiation, Body: encodeU16List([]uint16{NTPv4})},
		{Critical: false, Type: RecordNextProtocolNegotiation, Body: encodeU16List([]uint16{NTPv4, 7})},
		{Critical: true, Type: RecordAEADAlgorithmNegotiation, Body: encodeU16List([]uint16{AEADAESSIVCMAC256})},
		{Critical: false, Type: RecordNewCookie, Body: []byte("opaque-cookie-bytes")},
		{Critical: false, Type: RecordNewCookie, Body: []byte{}},
		{Critical: false, Type: RecordNTPv4Server, Body: []byte("time.example.com")},
		{Critical: false, Type: RecordNTPv4Port, Body: []byte{0x01, 0xBB}},
	}
	for _, want := range cases {
		raw, err := Serialize(want)
		if err != nil {
			t.Fatalf("Serialize(%+v): %v", want, err)
		}
		got, err := Deserialize(PartyClient, raw)
		if err != nil {
			t.Fatalf("Deserialize(%x): %v", raw, err)
		}
		if got.Critical != want.Critical || got.Type != want.Type || !bytes.Equal(got.Body, want.Body) {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDeserializeUnknownRecordType(t *testing.T) {
	const unknownType = RecordType(0x7F7F)

	critical, err := Serialize(Record{Critical: true, Type: unknownType})
	if err != nil {
		t.Fatalf("Serialize critical unknown: %v", err)
	}
	if _, err := Deserialize(PartyClient, critical); !errors.Is(err, ErrUnknownCriticalRecord) {
		t.Fatalf("Deserialize critical unknown: got %v, want ErrUnknownCriticalRecord", err)
	}

	notCritical, err := Serialize(Record{Critical: false, Type: unknownType})
	if err != nil {
		t.Fatalf("Serialize non-critical unknown: %v", err)
	}
	if _, err := Deserialize(PartyClient, notCritical); !errors.Is(err, ErrUnknownNotCriticalRecord) {
		t.Fatalf("Deserialize non-critical unknown: got %v, want ErrUnknownNotCriticalRecord", err)
	}
}

func TestDeserializeEndOfMessageMustBeCriticalAndEmpty(t *testing.T) {
	notCritical, err := Serialize(Record{Critical: false, Type: RecordEndOfMessage})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Deserialize(PartyClient, notCritical); err == nil {
		t.Fatal("expected error for non-critical end-of-message")
	}

	withBody, err := Serialize(Record{Critical: true, Type: RecordEndOfMessage, Body: []byte{0x00}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Deserialize(PartyClient, withBody); err == nil {
		t.Fatal("expected error for non-empty end-of-message body")
	}
}

func TestDeserializeOddLengthU16List(t *testing.T) {
	raw, _ := Serialize(Record{Type: RecordNextProtocolNegotiation, Body: []byte{0x00}})
	if _, err := Deserialize(PartyClient, raw); err == nil {
		t.Fatal("expected error for odd-length next-protocol body")
	}
}

func TestDeserializeInvalidUTF8Server(t *testing.T) {
	raw, _ := Serialize(Record{Type: RecordNTPv4Server, Body: []byte{0xFF, 0xFE}})
	if _, err := Deserialize(PartyClient, raw); err == nil {
		t.Fatal("expected error for invalid UTF-8 server body")
	}
}

func TestDeserializeTruncatedFrame(t *testing.T) {
	if _, err := Deserialize(PartyClient, []byte{0x00}); err == nil {
		t.Fatal("expected error for a frame shorter than the header")
	}
}

func TestDeserializeBodyLengthMismatch(t *testing.T) {
	raw, _ := Serialize(Record{Type: RecordNewCookie, Body: []byte("abc")})
	truncated := raw[:len(raw)-1]
	if _, err := Deserialize(PartyClient, truncated); err == nil {
		t.Fatal("expected error for a body shorter than declared")
	}
}
