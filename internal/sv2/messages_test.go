package sv2

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	payload, err := Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	decoded, err := Decode(m.Type(), payload)
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return decoded
}

func TestMessageRoundTrips(t *testing.T) {
	merklePath := [][32]byte{{1}, {2}, {3}}

	cases := []Message{
		SetupConnection{
			Protocol: 2, MinVersion: 2, MaxVersion: 2, Flags: 0,
			EndpointHost: "pool.example", EndpointPort: 3333,
			Vendor: "acme", HardwareVersion: "rev-a", Firmware: "1.0.0", DeviceID: "dev-1",
		},
		SetupConnectionSuccess{UsedVersion: 2, Flags: 0},
		SetupConnectionError{Flags: 0, ErrorCode: ErrUnsupportedProtocol},
		CoinbaseOutputDataSize{CoinbaseOutputMaxAdditionalSize: 1},
		NewTemplate{
			TemplateID: 42, FutureTemplate: true, Version: 0x20000000,
			CoinbaseTxVersion: 2, CoinbasePrefix: []byte{0x03, 0x01, 0x02, 0x03},
			CoinbaseTxInputSequence: 0xffffffff, CoinbaseTxValueRemaining: 5_000_000_000,
			CoinbaseTxOutputsCount: 1, CoinbaseTxOutputs: []byte{0xde, 0xad, 0xbe, 0xef},
			CoinbaseTxLocktime: 0, MerklePath: merklePath,
		},
		SetNewPrevHash{
			TemplateID: 42, PrevHash: [32]byte{0xaa}, HeaderTimestamp: 1700000000,
			NBits: 0x170b3fff, Target: [32]byte{0x00, 0xff},
		},
		RequestTransactionData{TemplateID: 42},
		RequestTransactionDataSuccess{
			TemplateID: 42, ExcessData: []byte{1, 2, 3},
			TransactionList: [][]byte{{0x01, 0x02}, {0x03, 0x04, 0x05}},
		},
		RequestTransactionDataError{TemplateID: 0xdeadbeef, ErrorCode: ErrTemplateIDNotFound},
		SubmitSolution{
			TemplateID: 42, Version: 0x20000000, HeaderTimestamp: 1700000001,
			HeaderNonce: 123456, CoinbaseTx: []byte{0x01, 0x00, 0x00, 0x00},
		},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%T round trip mismatch:\n got  %#v\n want %#v", want, got, want)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	payload, err := Encode(SetupConnectionSuccess{UsedVersion: 2, Flags: 0})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload = append(payload, 0xff)
	if _, err := Decode(MsgSetupConnectionSuccess, payload); err == nil {
		t.Fatalf("expected trailing-byte decode to fail")
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	if _, err := Decode(MsgSetupConnectionSuccess, []byte{0x02}); err == nil {
		t.Fatalf("expected short-payload decode to fail")
	}
}

func TestSetupConnectionWireLength(t *testing.T) {
	m := SetupConnection{
		Protocol: 2, MinVersion: 2, MaxVersion: 2, Flags: 0,
		EndpointHost: "pool.ex", EndpointPort: 3333,
		Vendor: "acme123", HardwareVersion: "rev-a12", Firmware: "fw-a", DeviceID: "0123456789012345678901234567",
	}
	payload, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// 1+2+2+4 + (1+len(host)) + 2 + (1+len(vendor)) + (1+len(hw)) + (1+len(fw)) + (1+len(id))
	want := 1 + 2 + 2 + 4 + (1 + len(m.EndpointHost)) + 2 + (1 + len(m.Vendor)) + (1 + len(m.HardwareVersion)) + (1 + len(m.Firmware)) + (1 + len(m.DeviceID))
	if len(payload) != want {
		t.Fatalf("payload length = %d, want %d", len(payload), want)
	}
	if !bytes.Contains(payload, []byte(m.DeviceID)) {
		t.Fatalf("encoded payload missing device id bytes")
	}
}
