package tp

import (
	"fmt"

	"sv2tp/internal/noise"
	"sv2tp/internal/sv2"
)

// SessionState is a per-client session's position in the handshake/setup
// state machine.
type SessionState int

const (
	StateHandshake SessionState = iota
	StateAwaitSetup
	StateAwaitCoinbaseSize
	StateStreaming
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "HANDSHAKE"
	case StateAwaitSetup:
		return "AWAIT_SETUP"
	case StateAwaitCoinbaseSize:
		return "AWAIT_COINBASE_SIZE"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind classifies a ProtocolError for the dispatch loop's disposition
// table.
type ErrorKind int

const (
	// TransportFatal covers AEAD failures, truncated frames, and socket
	// errors: the session is dropped without a reply.
	TransportFatal ErrorKind = iota
	// ProtocolViolation covers a message arriving in the wrong state or
	// with an out-of-range field: the session is dropped, optionally
	// after a typed error reply.
	ProtocolViolation
	// PolicyReject covers SetupConnection rejections: a typed error is
	// always sent before disconnecting.
	PolicyReject
)

// ProtocolError is the dispatch loop's error sum type, replacing the
// source's exception-based control flow.
type ProtocolError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tp: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("tp: %s", e.Code)
}

// SessionConfig carries the server-wide settings a session needs to
// validate SetupConnection and size future coinbase reservations.
type SessionConfig struct {
	ProtocolID       uint8
	MinVersion       uint16
	MaxVersion       uint16
	OptionalFeatures uint32
	MaxBlockWeight   uint32
}

// Session is one client's connection state: its transport cipher, its
// position in the setup state machine, and the bookkeeping the fee-delta
// gate and tip-change reset need.
type Session struct {
	ID     uint64
	Cipher *noise.Sv2Cipher

	State                     SessionState
	CoinbaseOutputMaxSize     uint32 // 0 until CoinbaseOutputDataSize is received
	CoinbaseSizeKnown         bool
	LastSubmittedTemplateFees int64
	DisconnectFlag            bool
}

// NewSession creates a session in the HANDSHAKE state around a
// newly-accepted connection's responder cipher.
func NewSession(id uint64, cipher *noise.Sv2Cipher) *Session {
	return &Session{ID: id, Cipher: cipher, State: StateHandshake}
}

// MarkHandshakeComplete transitions a session out of HANDSHAKE once its
// cipher reaches the transport phase.
func (s *Session) MarkHandshakeComplete() {
	s.State = StateAwaitSetup
}

// DispatchResult carries what a Dispatch call produced: zero or more reply
// messages to send back to the client, and, only for an accepted
// SubmitSolution, the raw block bytes to forward to the chain manager.
type DispatchResult struct {
	Replies    []sv2.Message
	Submission []byte
}

func replies(msgs ...sv2.Message) *DispatchResult { return &DispatchResult{Replies: msgs} }

// Dispatch applies one decoded application message to the session's state
// machine, returning the replies to send back (in order) or a
// ProtocolError describing why the session must be torn down.
func (s *Session) Dispatch(msgType sv2.MsgType, msg sv2.Message, cfg SessionConfig, cache *TemplateCache) (*DispatchResult, error) {
	switch s.State {
	case StateAwaitSetup:
		return s.dispatchAwaitSetup(msgType, msg, cfg)
	case StateAwaitCoinbaseSize:
		return s.dispatchAwaitCoinbaseSize(msgType, msg, cfg)
	case StateStreaming:
		return s.dispatchStreaming(msgType, msg, cache)
	default:
		s.DisconnectFlag = true
		return nil, &ProtocolError{Kind: ProtocolViolation, Code: "message-before-handshake"}
	}
}

func (s *Session) dispatchAwaitSetup(msgType sv2.MsgType, msg sv2.Message, cfg SessionConfig) (*DispatchResult, error) {
	setup, ok := msg.(sv2.SetupConnection)
	if !ok {
		s.DisconnectFlag = true
		return nil, &ProtocolError{Kind: ProtocolViolation, Code: "unexpected-message", Err: fmt.Errorf("got 0x%02x in AWAIT_SETUP", msgType)}
	}
	if setup.Protocol != cfg.ProtocolID {
		s.DisconnectFlag = true
		return replies(sv2.SetupConnectionError{Flags: 0, ErrorCode: sv2.ErrUnsupportedProtocol}),
			&ProtocolError{Kind: PolicyReject, Code: sv2.ErrUnsupportedProtocol}
	}
	if setup.MinVersion > cfg.MaxVersion || setup.MaxVersion < cfg.MinVersion {
		s.DisconnectFlag = true
		return replies(sv2.SetupConnectionError{Flags: 0, ErrorCode: sv2.ErrProtocolVersionMismatch}),
			&ProtocolError{Kind: PolicyReject, Code: sv2.ErrProtocolVersionMismatch}
	}
	s.State = StateAwaitCoinbaseSize
	return replies(sv2.SetupConnectionSuccess{UsedVersion: cfg.MaxVersion, Flags: cfg.OptionalFeatures}), nil
}

func (s *Session) dispatchAwaitCoinbaseSize(msgType sv2.MsgType, msg sv2.Message, cfg SessionConfig) (*DispatchResult, error) {
	cods, ok := msg.(sv2.CoinbaseOutputDataSize)
	if !ok {
		s.DisconnectFlag = true
		return nil, &ProtocolError{Kind: ProtocolViolation, Code: "unexpected-message", Err: fmt.Errorf("got 0x%02x in AWAIT_COINBASE_SIZE", msgType)}
	}
	if cods.CoinbaseOutputMaxAdditionalSize > cfg.MaxBlockWeight {
		s.DisconnectFlag = true
		return nil, &ProtocolError{Kind: ProtocolViolation, Code: "coinbase-size-too-large"}
	}
	s.CoinbaseOutputMaxSize = cods.CoinbaseOutputMaxAdditionalSize
	s.CoinbaseSizeKnown = true
	s.State = StateStreaming
	// The caller (the dispatch loop) drives the first send_work cycle once
	// it sees this session move from AWAIT_COINBASE_SIZE to STREAMING; no
	// reply is emitted here.
	return nil, nil
}

func (s *Session) dispatchStreaming(msgType sv2.MsgType, msg sv2.Message, cache *TemplateCache) (*DispatchResult, error) {
	switch m := msg.(type) {
	case sv2.RequestTransactionData:
		handle, ok := cache.Get(m.TemplateID)
		if !ok {
			return replies(sv2.RequestTransactionDataError{TemplateID: m.TemplateID, ErrorCode: sv2.ErrTemplateIDNotFound}), nil
		}
		txs := make([][]byte, len(handle.NonCoinbaseTxs))
		for i, tx := range handle.NonCoinbaseTxs {
			txs[i] = tx.Raw
		}
		return replies(sv2.RequestTransactionDataSuccess{
			TemplateID:      m.TemplateID,
			ExcessData:      handle.WitnessReserveValue,
			TransactionList: txs,
		}), nil

	case sv2.SubmitSolution:
		handle, ok := cache.Get(m.TemplateID)
		if !ok {
			// Spec §4.H: absence is silently dropped, not an error.
			return nil, nil
		}
		block, err := AssembleSubmittedBlock(handle, m)
		if err != nil {
			s.DisconnectFlag = true
			return nil, &ProtocolError{Kind: ProtocolViolation, Code: "malformed-submission", Err: err}
		}
		return &DispatchResult{Submission: block}, nil

	default:
		s.DisconnectFlag = true
		return nil, &ProtocolError{Kind: ProtocolViolation, Code: "unexpected-message", Err: fmt.Errorf("got 0x%02x in STREAMING", msgType)}
	}
}
