package tp

import (
	"testing"

	"sv2tp/internal/sv2"
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		ProtocolID:       0x02,
		MinVersion:       2,
		MaxVersion:       2,
		OptionalFeatures: 0,
		MaxBlockWeight:   4_000_000,
	}
}

func TestDispatchAwaitSetupAccepts(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateAwaitSetup

	result, err := s.Dispatch(sv2.MsgSetupConnection, sv2.SetupConnection{
		Protocol:   0x02,
		MinVersion: 2,
		MaxVersion: 2,
	}, testSessionConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State != StateAwaitCoinbaseSize {
		t.Fatalf("expected transition to AWAIT_COINBASE_SIZE, got %s", s.State)
	}
	if len(result.Replies) != 1 {
		t.Fatalf("expected exactly one reply")
	}
	if _, ok := result.Replies[0].(sv2.SetupConnectionSuccess); !ok {
		t.Fatalf("expected SetupConnectionSuccess, got %T", result.Replies[0])
	}
	if s.DisconnectFlag {
		t.Fatalf("accepted setup should not set DisconnectFlag")
	}
}

func TestDispatchAwaitSetupRejectsWrongProtocol(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateAwaitSetup

	result, err := s.Dispatch(sv2.MsgSetupConnection, sv2.SetupConnection{
		Protocol:   0x01,
		MinVersion: 2,
		MaxVersion: 2,
	}, testSessionConfig(), nil)
	if err == nil {
		t.Fatalf("expected an error for a mismatched protocol id")
	}
	if !s.DisconnectFlag {
		t.Fatalf("rejected setup must set DisconnectFlag")
	}
	if len(result.Replies) != 1 {
		t.Fatalf("expected a SetupConnectionError reply before disconnect")
	}
	if _, ok := result.Replies[0].(sv2.SetupConnectionError); !ok {
		t.Fatalf("expected SetupConnectionError, got %T", result.Replies[0])
	}
}

func TestDispatchAwaitSetupRejectsVersionMismatch(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateAwaitSetup

	_, err := s.Dispatch(sv2.MsgSetupConnection, sv2.SetupConnection{
		Protocol:   0x02,
		MinVersion: 3,
		MaxVersion: 5,
	}, testSessionConfig(), nil)
	if err == nil {
		t.Fatalf("expected an error for non-overlapping version ranges")
	}
}

func TestDispatchAwaitCoinbaseSizeTransitionsWithoutReply(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateAwaitCoinbaseSize

	result, err := s.Dispatch(sv2.MsgCoinbaseOutputDataSize, sv2.CoinbaseOutputDataSize{
		CoinbaseOutputMaxAdditionalSize: 100,
	}, testSessionConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("CoinbaseOutputDataSize handling should not itself reply")
	}
	if s.State != StateStreaming {
		t.Fatalf("expected transition to STREAMING, got %s", s.State)
	}
	if !s.CoinbaseSizeKnown || s.CoinbaseOutputMaxSize != 100 {
		t.Fatalf("coinbase size bookkeeping not recorded")
	}
}

func TestDispatchAwaitCoinbaseSizeRejectsOversizedReservation(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateAwaitCoinbaseSize
	cfg := testSessionConfig()

	_, err := s.Dispatch(sv2.MsgCoinbaseOutputDataSize, sv2.CoinbaseOutputDataSize{
		CoinbaseOutputMaxAdditionalSize: cfg.MaxBlockWeight + 1,
	}, cfg, nil)
	if err == nil {
		t.Fatalf("expected an error when the reservation exceeds MaxBlockWeight")
	}
	if !s.DisconnectFlag {
		t.Fatalf("oversized reservation must set DisconnectFlag")
	}
}

func TestDispatchStreamingRequestTransactionDataFound(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateStreaming
	cache := NewTemplateCache()
	id := cache.AllocateID()
	reserve := []byte{1, 2, 3, 4}
	cache.Insert(&BlockTemplateHandle{
		TemplateID:          id,
		NonCoinbaseTxs:      []Tx{{Raw: []byte("tx1")}, {Raw: []byte("tx2")}},
		WitnessReserveValue: reserve,
	})

	result, err := s.Dispatch(sv2.MsgRequestTransactionData, sv2.RequestTransactionData{TemplateID: id}, testSessionConfig(), cache)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	success, ok := result.Replies[0].(sv2.RequestTransactionDataSuccess)
	if !ok {
		t.Fatalf("expected RequestTransactionDataSuccess, got %T", result.Replies[0])
	}
	if len(success.TransactionList) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(success.TransactionList))
	}
	if string(success.ExcessData) != string(reserve) {
		t.Fatalf("ExcessData = %v, want the handle's witness reserve value %v", success.ExcessData, reserve)
	}
}

func TestDispatchStreamingRequestTransactionDataUnknownID(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateStreaming
	cache := NewTemplateCache()

	result, err := s.Dispatch(sv2.MsgRequestTransactionData, sv2.RequestTransactionData{TemplateID: 999}, testSessionConfig(), cache)
	if err != nil {
		t.Fatalf("unknown template id should not itself be a dispatch error: %v", err)
	}
	errReply, ok := result.Replies[0].(sv2.RequestTransactionDataError)
	if !ok {
		t.Fatalf("expected RequestTransactionDataError, got %T", result.Replies[0])
	}
	if errReply.ErrorCode != sv2.ErrTemplateIDNotFound {
		t.Fatalf("unexpected error code %q", errReply.ErrorCode)
	}
	if s.DisconnectFlag {
		t.Fatalf("an unknown template id should not disconnect the session")
	}
}

func TestDispatchStreamingSubmitSolutionUnknownIDIsSilentlyDropped(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateStreaming
	cache := NewTemplateCache()

	result, err := s.Dispatch(sv2.MsgSubmitSolution, sv2.SubmitSolution{TemplateID: 123}, testSessionConfig(), cache)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("submission against an unknown template id should produce no reply or forward, got %+v", result)
	}
	if s.DisconnectFlag {
		t.Fatalf("an unknown template id on SubmitSolution should not disconnect the session")
	}
}

func TestDispatchStreamingSubmitSolutionAssemblesBlock(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateStreaming
	cache := NewTemplateCache()
	id := cache.AllocateID()
	cache.Insert(&BlockTemplateHandle{
		TemplateID: id,
		PrevHash:   txid(7),
		NBits:      0x1d00ffff,
	})

	coinbase := legacyTx()
	result, err := s.Dispatch(sv2.MsgSubmitSolution, sv2.SubmitSolution{
		TemplateID:      id,
		Version:         4,
		HeaderTimestamp: 1_700_000_000,
		HeaderNonce:     42,
		CoinbaseTx:      coinbase,
	}, testSessionConfig(), cache)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || len(result.Submission) == 0 {
		t.Fatalf("expected a serialized block in Submission")
	}
	if result.Replies != nil {
		t.Fatalf("SubmitSolution never produces a direct reply")
	}
}

func TestDispatchStreamingUnexpectedMessageDisconnects(t *testing.T) {
	s := NewSession(1, nil)
	s.State = StateStreaming
	cache := NewTemplateCache()

	_, err := s.Dispatch(sv2.MsgNewTemplate, sv2.NewTemplate{}, testSessionConfig(), cache)
	if err == nil {
		t.Fatalf("expected an error for a server-to-client message arriving from a client")
	}
	if !s.DisconnectFlag {
		t.Fatalf("unexpected message in STREAMING must set DisconnectFlag")
	}
}
