package sv2

import "fmt"

// Message is implemented by every Template Distribution message type; it
// reports the catalogue id used in the frame header.
type Message interface {
	Type() MsgType
	encode(w *writer) error
}

// SetupConnection is the initiator's opening message.
type SetupConnection struct {
	Protocol        uint8
	MinVersion      uint16
	MaxVersion      uint16
	Flags           uint32
	EndpointHost    string
	EndpointPort    uint16
	Vendor          string
	HardwareVersion string
	Firmware        string
	DeviceID        string
}

func (SetupConnection) Type() MsgType { return MsgSetupConnection }

func (m SetupConnection) encode(w *writer) error {
	w.u8(m.Protocol)
	w.u16(m.MinVersion)
	w.u16(m.MaxVersion)
	w.u32(m.Flags)
	if err := w.str8(m.EndpointHost); err != nil {
		return err
	}
	w.u16(m.EndpointPort)
	if err := w.str8(m.Vendor); err != nil {
		return err
	}
	if err := w.str8(m.HardwareVersion); err != nil {
		return err
	}
	if err := w.str8(m.Firmware); err != nil {
		return err
	}
	return w.str8(m.DeviceID)
}

func decodeSetupConnection(r *reader) (SetupConnection, error) {
	var m SetupConnection
	var err error
	if m.Protocol, err = r.u8(); err != nil {
		return m, err
	}
	if m.MinVersion, err = r.u16(); err != nil {
		return m, err
	}
	if m.MaxVersion, err = r.u16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.u32(); err != nil {
		return m, err
	}
	if m.EndpointHost, err = r.str8(); err != nil {
		return m, err
	}
	if m.EndpointPort, err = r.u16(); err != nil {
		return m, err
	}
	if m.Vendor, err = r.str8(); err != nil {
		return m, err
	}
	if m.HardwareVersion, err = r.str8(); err != nil {
		return m, err
	}
	if m.Firmware, err = r.str8(); err != nil {
		return m, err
	}
	if m.DeviceID, err = r.str8(); err != nil {
		return m, err
	}
	return m, nil
}

// SetupConnectionSuccess is the responder's acceptance reply.
type SetupConnectionSuccess struct {
	UsedVersion uint16
	Flags       uint32
}

func (SetupConnectionSuccess) Type() MsgType { return MsgSetupConnectionSuccess }

func (m SetupConnectionSuccess) encode(w *writer) error {
	w.u16(m.UsedVersion)
	w.u32(m.Flags)
	return nil
}

func decodeSetupConnectionSuccess(r *reader) (SetupConnectionSuccess, error) {
	var m SetupConnectionSuccess
	var err error
	if m.UsedVersion, err = r.u16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// Known SetupConnectionError codes.
const (
	ErrUnsupportedProtocol     = "unsupported-protocol"
	ErrProtocolVersionMismatch = "protocol-version-mismatch"
)

// SetupConnectionError is the responder's rejection reply.
type SetupConnectionError struct {
	Flags     uint32
	ErrorCode string
}

func (SetupConnectionError) Type() MsgType { return MsgSetupConnectionError }

func (m SetupConnectionError) encode(w *writer) error {
	w.u32(m.Flags)
	return w.str8(m.ErrorCode)
}

func decodeSetupConnectionError(r *reader) (SetupConnectionError, error) {
	var m SetupConnectionError
	var err error
	if m.Flags, err = r.u32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.str8(); err != nil {
		return m, err
	}
	return m, nil
}

// CoinbaseOutputDataSize tells the server how many bytes of additional
// coinbase output space the client's own outputs require.
type CoinbaseOutputDataSize struct {
	CoinbaseOutputMaxAdditionalSize uint32
}

func (CoinbaseOutputDataSize) Type() MsgType { return MsgCoinbaseOutputDataSize }

func (m CoinbaseOutputDataSize) encode(w *writer) error {
	w.u32(m.CoinbaseOutputMaxAdditionalSize)
	return nil
}

func decodeCoinbaseOutputDataSize(r *reader) (CoinbaseOutputDataSize, error) {
	var m CoinbaseOutputDataSize
	var err error
	if m.CoinbaseOutputMaxAdditionalSize, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// NewTemplate announces a fresh block template to the client.
type NewTemplate struct {
	TemplateID               uint64
	FutureTemplate           bool
	Version                  uint32
	CoinbaseTxVersion        uint32
	CoinbasePrefix           []byte
	CoinbaseTxInputSequence  uint32
	CoinbaseTxValueRemaining uint64
	CoinbaseTxOutputsCount   uint32
	CoinbaseTxOutputs        []byte
	CoinbaseTxLocktime       uint32
	MerklePath               [][32]byte
}

func (NewTemplate) Type() MsgType { return MsgNewTemplate }

func (m NewTemplate) encode(w *writer) error {
	w.u64(m.TemplateID)
	w.bool(m.FutureTemplate)
	w.u32(m.Version)
	w.u32(m.CoinbaseTxVersion)
	if err := w.str8(string(m.CoinbasePrefix)); err != nil {
		return err
	}
	w.u32(m.CoinbaseTxInputSequence)
	w.u64(m.CoinbaseTxValueRemaining)
	w.u32(m.CoinbaseTxOutputsCount)
	if err := w.bytesU16(m.CoinbaseTxOutputs); err != nil {
		return err
	}
	w.u32(m.CoinbaseTxLocktime)
	return w.hashVec(m.MerklePath)
}

func decodeNewTemplate(r *reader) (NewTemplate, error) {
	var m NewTemplate
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	if m.FutureTemplate, err = r.boolean(); err != nil {
		return m, err
	}
	if m.Version, err = r.u32(); err != nil {
		return m, err
	}
	if m.CoinbaseTxVersion, err = r.u32(); err != nil {
		return m, err
	}
	prefix, err := r.str8()
	if err != nil {
		return m, err
	}
	m.CoinbasePrefix = []byte(prefix)
	if m.CoinbaseTxInputSequence, err = r.u32(); err != nil {
		return m, err
	}
	if m.CoinbaseTxValueRemaining, err = r.u64(); err != nil {
		return m, err
	}
	if m.CoinbaseTxOutputsCount, err = r.u32(); err != nil {
		return m, err
	}
	if m.CoinbaseTxOutputs, err = r.bytesU16(); err != nil {
		return m, err
	}
	if m.CoinbaseTxLocktime, err = r.u32(); err != nil {
		return m, err
	}
	if m.MerklePath, err = r.hashVec(); err != nil {
		return m, err
	}
	return m, nil
}

// SetNewPrevHash announces the chain tip a template (or set of templates)
// is built on.
type SetNewPrevHash struct {
	TemplateID      uint64
	PrevHash        [32]byte
	HeaderTimestamp uint32
	NBits           uint32
	Target          [32]byte
}

func (SetNewPrevHash) Type() MsgType { return MsgSetNewPrevHash }

func (m SetNewPrevHash) encode(w *writer) error {
	w.u64(m.TemplateID)
	w.raw(m.PrevHash[:])
	w.u32(m.HeaderTimestamp)
	w.u32(m.NBits)
	w.raw(m.Target[:])
	return nil
}

func decodeSetNewPrevHash(r *reader) (SetNewPrevHash, error) {
	var m SetNewPrevHash
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	if m.PrevHash, err = r.hash32(); err != nil {
		return m, err
	}
	if m.HeaderTimestamp, err = r.u32(); err != nil {
		return m, err
	}
	if m.NBits, err = r.u32(); err != nil {
		return m, err
	}
	if m.Target, err = r.hash32(); err != nil {
		return m, err
	}
	return m, nil
}

// RequestTransactionData asks the server for the non-coinbase transaction
// set backing a previously announced template.
type RequestTransactionData struct {
	TemplateID uint64
}

func (RequestTransactionData) Type() MsgType { return MsgRequestTransactionData }

func (m RequestTransactionData) encode(w *writer) error {
	w.u64(m.TemplateID)
	return nil
}

func decodeRequestTransactionData(r *reader) (RequestTransactionData, error) {
	var m RequestTransactionData
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	return m, nil
}

// RequestTransactionDataSuccess carries the transaction set for a known
// template.
type RequestTransactionDataSuccess struct {
	TemplateID      uint64
	ExcessData      []byte
	TransactionList [][]byte
}

func (RequestTransactionDataSuccess) Type() MsgType { return MsgRequestTransactionDataSuccess }

func (m RequestTransactionDataSuccess) encode(w *writer) error {
	w.u64(m.TemplateID)
	if err := w.bytesU16(m.ExcessData); err != nil {
		return err
	}
	return w.bytesU24Vec(m.TransactionList)
}

func decodeRequestTransactionDataSuccess(r *reader) (RequestTransactionDataSuccess, error) {
	var m RequestTransactionDataSuccess
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	if m.ExcessData, err = r.bytesU16(); err != nil {
		return m, err
	}
	if m.TransactionList, err = r.bytesU24Vec(); err != nil {
		return m, err
	}
	return m, nil
}

// Known RequestTransactionDataError codes.
const ErrTemplateIDNotFound = "template-id-not-found"

// RequestTransactionDataError reports an unknown template_id.
type RequestTransactionDataError struct {
	TemplateID uint64
	ErrorCode  string
}

func (RequestTransactionDataError) Type() MsgType { return MsgRequestTransactionDataError }

func (m RequestTransactionDataError) encode(w *writer) error {
	w.u64(m.TemplateID)
	return w.str8(m.ErrorCode)
}

func decodeRequestTransactionDataError(r *reader) (RequestTransactionDataError, error) {
	var m RequestTransactionDataError
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.str8(); err != nil {
		return m, err
	}
	return m, nil
}

// SubmitSolution carries a completed block's header delta and coinbase
// transaction back to the server.
type SubmitSolution struct {
	TemplateID      uint64
	Version         uint32
	HeaderTimestamp uint32
	HeaderNonce     uint32
	CoinbaseTx      []byte
}

func (SubmitSolution) Type() MsgType { return MsgSubmitSolution }

func (m SubmitSolution) encode(w *writer) error {
	w.u64(m.TemplateID)
	w.u32(m.Version)
	w.u32(m.HeaderTimestamp)
	w.u32(m.HeaderNonce)
	return w.bytesU16(m.CoinbaseTx)
}

func decodeSubmitSolution(r *reader) (SubmitSolution, error) {
	var m SubmitSolution
	var err error
	if m.TemplateID, err = r.u64(); err != nil {
		return m, err
	}
	if m.Version, err = r.u32(); err != nil {
		return m, err
	}
	if m.HeaderTimestamp, err = r.u32(); err != nil {
		return m, err
	}
	if m.HeaderNonce, err = r.u32(); err != nil {
		return m, err
	}
	if m.CoinbaseTx, err = r.bytesU16(); err != nil {
		return m, err
	}
	return m, nil
}

// Encode serializes a Message's payload bytes (not including the frame
// header).
func Encode(m Message) ([]byte, error) {
	w := newWriter()
	if err := m.encode(w); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// Decode parses a payload of the given type into its typed Message.
func Decode(t MsgType, payload []byte) (Message, error) {
	r := newReader(payload)
	var (
		m   Message
		err error
	)
	switch t {
	case MsgSetupConnection:
		m, err = decodeSetupConnection(r)
	case MsgSetupConnectionSuccess:
		m, err = decodeSetupConnectionSuccess(r)
	case MsgSetupConnectionError:
		m, err = decodeSetupConnectionError(r)
	case MsgCoinbaseOutputDataSize:
		m, err = decodeCoinbaseOutputDataSize(r)
	case MsgNewTemplate:
		m, err = decodeNewTemplate(r)
	case MsgSetNewPrevHash:
		m, err = decodeSetNewPrevHash(r)
	case MsgRequestTransactionData:
		m, err = decodeRequestTransactionData(r)
	case MsgRequestTransactionDataSuccess:
		m, err = decodeRequestTransactionDataSuccess(r)
	case MsgRequestTransactionDataError:
		m, err = decodeRequestTransactionDataError(r)
	case MsgSubmitSolution:
		m, err = decodeSubmitSolution(r)
	default:
		return nil, fmt.Errorf("sv2: unknown message type 0x%02x", uint8(t))
	}
	if err != nil {
		return nil, fmt.Errorf("sv2: decode 0x%02x: %w", uint8(t), err)
	}
	if !r.finished() {
		return nil, fmt.Errorf("sv2: decode 0x%02x: %d trailing bytes", uint8(t), r.remaining())
	}
	return m, nil
}
