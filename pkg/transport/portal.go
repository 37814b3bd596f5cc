package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
)

// IDExtractor pulls the correlation id out of a decoded reply frame. Each
// service (VLC, inference) defines its own wire envelope, so the portal
// stays generic over the bytes and only needs to know how to find the id.
type IDExtractor func(reply []byte) (uint64, error)

// Portal is a host-side client for one enclave vsock connection: a single
// writer goroutine serializes outbound frames, a single reader goroutine
// demultiplexes inbound frames to the caller awaiting that id, mirroring
// nitro_enclaves_portal_session's write/read task split.
type Portal struct {
	conn   net.Conn
	logger zerolog.Logger

	writeCh chan []byte

	mu      sync.Mutex
	pending map[uint64]chan portalReply
	closed  bool
}

type portalReply struct {
	payload []byte
	err     error
}

// DialContext opens a real AF_VSOCK connection to (cid, port). Use NewPortal
// directly in tests against an in-memory net.Conn (e.g. net.Pipe).
func DialContext(ctx context.Context, cid, port uint32, logger zerolog.Logger) (*Portal, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := vsock.Dial(cid, port, nil)
		resultCh <- dialResult{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("transport: dial vsock cid=%d port=%d: %w", cid, port, r.err)
		}
		return NewPortal(r.conn, logger), nil
	}
}

// DialRetryConfig bounds DialWithRetry's backoff loop.
type DialRetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultDialRetryConfig matches the reference deployment: five attempts,
// doubling from 200ms up to a five-second ceiling.
func DefaultDialRetryConfig() DialRetryConfig {
	return DialRetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// DialWithRetry dials (cid, port) like DialContext, retrying with
// exponential backoff while the enclave listener is not yet accepting
// connections, on the host side of the vsock boundary.
func DialWithRetry(ctx context.Context, cid, port uint32, cfg DialRetryConfig, logger zerolog.Logger) (*Portal, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultDialRetryConfig()
	}
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		portal, err := DialContext(ctx, cid, port, logger)
		if err == nil {
			return portal, nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Uint32("cid", cid).Uint32("port", port).
			Msg("transport: dial attempt failed, retrying")
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return nil, fmt.Errorf("transport: dial cid=%d port=%d failed after %d attempts: %w", cid, port, cfg.MaxAttempts, lastErr)
}

// NewPortal wraps an already-established connection.
func NewPortal(conn net.Conn, logger zerolog.Logger) *Portal {
	return &Portal{
		conn:    conn,
		logger:  logger,
		writeCh: make(chan []byte, 64),
		pending: make(map[uint64]chan portalReply),
	}
}

// Start launches the writer and reader goroutines. It must be called once,
// before the first Call.
func (p *Portal) Start(ctx context.Context, extractID IDExtractor) {
	go p.writeLoop(ctx)
	go p.readLoop(ctx, extractID)
}

func (p *Portal) writeLoop(ctx context.Context) {
	for {
		select {
		case buf, ok := <-p.writeCh:
			if !ok {
				return
			}
			if err := WriteFrame(p.conn, buf); err != nil {
				p.logger.Warn().Err(err).Msg("portal write failed")
				p.failAll(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Portal) readLoop(ctx context.Context, extractID IDExtractor) {
	for {
		buf, err := ReadFrame(p.conn)
		if err != nil {
			p.failAll(fmt.Errorf("transport: portal read failed: %w", err))
			return
		}
		id, err := extractID(buf)
		if err != nil {
			p.logger.Warn().Err(err).Msg("portal could not correlate reply, dropping")
			continue
		}
		p.mu.Lock()
		ch, ok := p.pending[id]
		if ok {
			delete(p.pending, id)
		}
		p.mu.Unlock()
		if !ok {
			p.logger.Warn().Uint64("id", id).Msg("portal reply for unknown or expired request")
			continue
		}
		ch <- portalReply{payload: buf}
	}
}

// Call sends payload and blocks until the reply correlated by id arrives, ctx
// is canceled, or the connection fails.
func (p *Portal) Call(ctx context.Context, id uint64, payload []byte) ([]byte, error) {
	replyCh := make(chan portalReply, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("transport: portal closed")
	}
	p.pending[id] = replyCh
	p.mu.Unlock()

	select {
	case p.writeCh <- payload:
	case <-ctx.Done():
		p.forget(id)
		return nil, ctx.Err()
	}

	select {
	case r := <-replyCh:
		return r.payload, r.err
	case <-ctx.Done():
		p.forget(id)
		return nil, ctx.Err()
	}
}

func (p *Portal) forget(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Portal) failAll(err error) {
	p.mu.Lock()
	p.closed = true
	pending := p.pending
	p.pending = make(map[uint64]chan portalReply)
	p.mu.Unlock()
	for _, ch := range pending {
		ch <- portalReply{err: err}
	}
}

// Close shuts down the underlying connection, unblocking the writer/reader
// goroutines and any outstanding Call.
func (p *Portal) Close() error {
	return p.conn.Close()
}
