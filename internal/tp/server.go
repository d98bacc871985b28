package tp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"sv2tp/internal/metrics"
	"sv2tp/internal/noise"
	"sv2tp/internal/sv2"
)

// ServerConfig carries the server-wide settings the dispatch loop and
// session state machine need, translated from internal/config.Config.
type ServerConfig struct {
	ListenAddr             string
	ProtocolID             uint8
	MinVersion             uint16
	MaxVersion             uint16
	OptionalFeatures       uint32
	DefaultFutureTemplates bool
	Interval               time.Duration
	FeeDeltaSats           int64
	MaxBlockWeight         uint32
	TipPollInterval        time.Duration
}

// clientConn bundles a session's network connection with its decoded
// application state. Only the dispatch loop goroutine mutates Session;
// the per-connection reader goroutine only reads and decodes frames.
type clientConn struct {
	conn    net.Conn
	session *Session
}

type inboundFrame struct {
	sessionID uint64
	msgType   sv2.MsgType
	msg       sv2.Message
	fatal     error
}

type handshakeResult struct {
	conn   net.Conn
	cipher *noise.Sv2Cipher
	err    error
}

// Server is the single-writer template dispatch loop: one goroutine owns
// the session table and the template cache outright, matching the
// upstream ThreadSv2Handler's no-locks-required design. Per-connection
// goroutines only perform blocking socket I/O and funnel decoded frames
// back through channels; they never touch shared state directly.
type Server struct {
	cfg      ServerConfig
	keystore *noise.Keystore

	chain      ChainstateManager
	mempool    Mempool
	assembler  BlockAssembler
	tipWatcher TipWatcher
	metrics    metrics.Recorder
	logger     *log.Logger

	listener net.Listener

	sessions      map[uint64]*clientConn
	nextSessionID uint64
	cache         *TemplateCache

	bestBlockHash    [32]byte
	lastMempoolCount uint64
	status           liveStatus

	acceptCh    chan net.Conn
	handshakeCh chan handshakeResult
	inbox       chan inboundFrame
}

// NewServer builds a Server ready to Run. The listen socket is bound
// lazily on the first Run iteration that observes the chain is no longer
// in initial block download.
func NewServer(cfg ServerConfig, keystore *noise.Keystore, chain ChainstateManager, mempool Mempool, assembler BlockAssembler, tipWatcher TipWatcher, recorder metrics.Recorder, logger *log.Logger) *Server {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:         cfg,
		keystore:    keystore,
		chain:       chain,
		mempool:     mempool,
		assembler:   assembler,
		tipWatcher:  tipWatcher,
		metrics:     recorder,
		logger:      logger,
		sessions:    make(map[uint64]*clientConn),
		cache:       NewTemplateCache(),
		acceptCh:    make(chan net.Conn),
		handshakeCh: make(chan handshakeResult),
		inbox:       make(chan inboundFrame, 64),
	}
}

// Run drives the dispatch loop until ctx is canceled. It blocks the
// calling goroutine.
func (s *Server) Run(ctx context.Context) error {
	ibdTicker := time.NewTicker(100 * time.Millisecond)
	defer ibdTicker.Stop()

	bound := false
	for !bound {
		ibd, err := s.chain.IsIBD(ctx)
		if err != nil {
			return fmt.Errorf("tp: query IBD state: %w", err)
		}
		if !ibd {
			if err := s.bind(); err != nil {
				return fmt.Errorf("tp: bind listen socket: %w", err)
			}
			if hash, err := s.chain.BestBlockHash(ctx); err == nil {
				s.bestBlockHash = hash
				s.setBestBlockHash(hash)
			}
			bound = true
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ibdTicker.C:
		}
	}

	go s.acceptLoop(ctx)

	tipTicker := time.NewTicker(50 * time.Millisecond)
	defer tipTicker.Stop()
	rebuildTicker := time.NewTicker(s.cfg.Interval)
	defer rebuildTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil

		case conn := <-s.acceptCh:
			s.metrics.ConnOpened()
			go s.handshakeConn(ctx, conn)

		case hr := <-s.handshakeCh:
			s.onHandshakeResult(hr)

		case frame := <-s.inbox:
			s.onInbound(ctx, frame)

		case <-tipTicker.C:
			s.checkTipChange(ctx)

		case <-rebuildTicker.C:
			s.checkMempoolRebuild(ctx)
		}
	}
}

func (s *Server) bind() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("tp: accept error: %v", err)
			continue
		}
		select {
		case s.acceptCh <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// handshakeConn runs the two-message Noise handshake for a freshly
// accepted connection and reports the result back to the dispatch loop,
// which alone is allowed to register the resulting session.
func (s *Server) handshakeConn(ctx context.Context, conn net.Conn) {
	cipher, err := noise.NewResponderCipher(s.keystore.StaticPriv, s.keystore.StaticX, s.keystore.Cert)
	if err != nil {
		s.reportHandshake(ctx, conn, nil, err)
		return
	}

	var msg1 [noise.EllSwiftKeySize]byte
	if _, err := io.ReadFull(conn, msg1[:]); err != nil {
		s.reportHandshake(ctx, conn, nil, err)
		return
	}
	reply, err := cipher.Step1Responder(msg1[:])
	if err != nil {
		s.reportHandshake(ctx, conn, nil, err)
		return
	}
	if _, err := conn.Write(reply); err != nil {
		s.reportHandshake(ctx, conn, nil, err)
		return
	}
	s.reportHandshake(ctx, conn, cipher, nil)
}

func (s *Server) reportHandshake(ctx context.Context, conn net.Conn, cipher *noise.Sv2Cipher, err error) {
	select {
	case s.handshakeCh <- handshakeResult{conn: conn, cipher: cipher, err: err}:
	case <-ctx.Done():
		conn.Close()
	}
}

func (s *Server) onHandshakeResult(hr handshakeResult) {
	if hr.err != nil {
		s.metrics.HandshakeFailed()
		hr.conn.Close()
		return
	}
	id := s.nextSessionID
	s.nextSessionID++
	sess := NewSession(id, hr.cipher)
	sess.MarkHandshakeComplete()
	cc := &clientConn{conn: hr.conn, session: sess}
	s.sessions[id] = cc
	s.setSessionCount(len(s.sessions))
	go s.readLoop(id, cc)
}

// readLoop decodes application frames off one session's connection and
// forwards them to the dispatch loop; it never mutates session state
// itself.
func (s *Server) readLoop(id uint64, cc *clientConn) {
	for {
		msgType, msg, err := sv2.ReadFrame(cc.session.Cipher, cc.conn)
		if err != nil {
			s.inbox <- inboundFrame{sessionID: id, fatal: err}
			return
		}
		s.inbox <- inboundFrame{sessionID: id, msgType: msgType, msg: msg}
	}
}

func (s *Server) onInbound(ctx context.Context, frame inboundFrame) {
	cc, ok := s.sessions[frame.sessionID]
	if !ok {
		return
	}
	if frame.fatal != nil {
		s.disconnect(cc, frame.sessionID)
		return
	}

	wasAwaitingCoinbase := cc.session.State == StateAwaitCoinbaseSize
	result, err := cc.session.Dispatch(frame.msgType, frame.msg, SessionConfig{
		ProtocolID:       s.cfg.ProtocolID,
		MinVersion:       s.cfg.MinVersion,
		MaxVersion:       s.cfg.MaxVersion,
		OptionalFeatures: s.cfg.OptionalFeatures,
		MaxBlockWeight:   s.cfg.MaxBlockWeight,
	}, s.cache)

	if result != nil {
		for _, reply := range result.Replies {
			switch r := reply.(type) {
			case sv2.SetupConnectionError:
				s.metrics.SetupRejected(r.ErrorCode)
			case sv2.RequestTransactionDataError:
				s.metrics.TxDataNotFound()
			}
			if sendErr := s.send(cc, reply); sendErr != nil {
				s.disconnect(cc, frame.sessionID)
				return
			}
		}
		if result.Submission != nil {
			success := s.chain.ProcessNewBlock(ctx, result.Submission) == nil
			s.metrics.SolutionSubmitted(success)
		}
	}

	if err != nil {
		s.disconnect(cc, frame.sessionID)
		return
	}
	if wasAwaitingCoinbase && cc.session.State == StateStreaming {
		s.sendWork(ctx, cc, true)
	}
}

func (s *Server) disconnect(cc *clientConn, id uint64) {
	cc.session.DisconnectFlag = true
	cc.conn.Close()
	delete(s.sessions, id)
	s.setSessionCount(len(s.sessions))
	s.metrics.ConnClosed()
}

func (s *Server) closeAll() {
	for id, cc := range s.sessions {
		cc.conn.Close()
		delete(s.sessions, id)
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) send(cc *clientConn, m sv2.Message) error {
	frame, err := sv2.WriteFrame(cc.session.Cipher, m)
	if err != nil {
		return err
	}
	_, err = cc.conn.Write(frame)
	return err
}
