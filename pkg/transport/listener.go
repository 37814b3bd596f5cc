package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one inbound request frame. reply may be called zero or
// more times (the attested-state services here call it exactly once); it is
// safe to call from any goroutine for the lifetime of the connection.
type Handler func(ctx context.Context, request []byte, reply func([]byte) error)

// Listener accepts connections on an underlying net.Listener — a real
// AF_VSOCK listener in production, or any net.Listener (net.Pipe, a loopback
// TCP listener) in tests — and runs Handler against every inbound frame.
//
// Per connection this mirrors the accept/split/channel/spawn-per-request
// shape: one writer goroutine drains a buffered reply channel and serializes
// writes, one reader goroutine reads frames and spawns a handler goroutine
// per request, so a slow request never blocks others on the same connection.
type Listener struct {
	ln     net.Listener
	logger zerolog.Logger
}

// NewListener wraps ln. Serve closes ln when its context is canceled;
// otherwise the caller owns ln's lifecycle.
func NewListener(ln net.Listener, logger zerolog.Logger) *Listener {
	return &Listener{ln: ln, logger: logger}
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (l *Listener) Serve(ctx context.Context, handler Handler) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		connectionsAccepted.Inc()
		go l.serveConn(ctx, conn, handler)
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	writeCh := make(chan []byte, 64)
	var writeWG sync.WaitGroup
	writeWG.Add(1)
	go func() {
		defer writeWG.Done()
		for buf := range writeCh {
			if err := WriteFrame(conn, buf); err != nil {
				l.logger.Warn().Err(err).Msg("vsock write failed, closing connection")
				return
			}
			framesWritten.Inc()
		}
	}()

	var handlerWG sync.WaitGroup
	var closeWriteOnce sync.Once
	closeWrite := func() { closeWriteOnce.Do(func() { close(writeCh) }) }

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

readLoop:
	for {
		buf, err := ReadFrame(conn)
		if err != nil {
			break readLoop
		}
		reqCopy := buf
		handlerWG.Add(1)
		go func() {
			defer handlerWG.Done()
			start := time.Now()
			defer func() { handlerLatency.Observe(time.Since(start).Seconds()) }()
			reply := func(out []byte) error {
				select {
				case writeCh <- out:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			handler(ctx, reqCopy, reply)
		}()
	}

	close(stop)
	handlerWG.Wait()
	closeWrite()
	writeWG.Wait()
}
