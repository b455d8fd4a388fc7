// Package netio implements the accept loop and per-connection read/write
// goroutines (spec component D), grounded on the teacher's server.go
// accept loop and pump_read.go/pump_write.go, reimplemented over raw
// net.Conn length-prefixed framing instead of a WebSocket upgrade: the
// distilled spec fixes the wire transport as a plain TCP stream of
// {PacketHeader, body} frames, not gobwas/ws.
package netio

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/handler"
	"github.com/kybird/vsurv/internal/metrics"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/session"
)

const (
	readDeadline  = 30 * time.Second
	writeDeadline = 5 * time.Second
)

// Config bundles the tunables a Listener needs to size per-connection
// state, sourced from internal/config at startup.
type Config struct {
	Addr            string
	MaxConnections  int
	RecvBufferSize  int
	RateLimitBurst  float64
	RateLimitRefill float64
	SendQueueDepth  int
}

// Guard is the admission check a Listener consults before accepting a new
// connection, satisfied by *resourceguard.Guard. Kept as a narrow interface
// here rather than importing internal/resourceguard directly, so netio's
// tests can construct a Listener with no guard at all (nil is a valid,
// always-admit Guard).
type Guard interface {
	ShouldAcceptConnection() (accept bool, reason string)
}

// Listener accepts TCP connections, admits them against a connection
// semaphore, and runs one read goroutine and one write goroutine per
// session. Parsed frames are copied into a pooled Packet and posted to the
// logic Dispatcher, which is the only goroutine that ever runs a
// HandlerRegistry entry; the read goroutine itself never touches game
// state.
type Listener struct {
	cfg        Config
	logger     zerolog.Logger
	sessions   *session.Registry
	handlers   *handler.Registry
	dispatcher *dispatch.Dispatcher
	pool       *packet.Pool
	metrics    *metrics.Registry
	guard      Guard
	connCount  *int64 // shared with the Guard's admission check, if any

	ln  net.Listener
	sem chan struct{}
	wg  sync.WaitGroup
}

// New builds a Listener. Serve must be called to actually bind and accept.
// guard may be nil, in which case admission relies solely on the
// MaxConnections semaphore. connCount, when non-nil, is kept in lockstep
// with the number of currently open sessions so guard's own admission
// checks (which read the same pointer) see up-to-date load.
func New(cfg Config, sessions *session.Registry, handlers *handler.Registry, d *dispatch.Dispatcher, pool *packet.Pool, m *metrics.Registry, guard Guard, connCount *int64, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		logger:     logger,
		sessions:   sessions,
		handlers:   handlers,
		dispatcher: d,
		pool:       pool,
		metrics:    m,
		guard:      guard,
		connCount:  connCount,
		sem:        make(chan struct{}, cfg.MaxConnections),
	}
}

// Serve binds the listen address and runs the accept loop until ctx is
// canceled. It returns once the listener is closed and all in-flight
// connections have been drained.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				l.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		if l.guard != nil {
			if accept, reason := l.guard.ShouldAcceptConnection(); !accept {
				l.logger.Warn().Str("remote", conn.RemoteAddr().String()).Str("reason", reason).Msg("connection rejected by resource guard")
				conn.Close()
				continue
			}
		}

		select {
		case l.sem <- struct{}{}:
		default:
			l.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("connection rejected, at capacity")
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	defer func() { <-l.sem }()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	id := l.sessions.NextID()
	sess := session.NewSession(id, conn, l.cfg.RecvBufferSize, l.cfg.RateLimitBurst, l.cfg.RateLimitRefill, l.cfg.SendQueueDepth)
	sess.SetState(session.Connected)
	l.sessions.Register(sess)
	if l.metrics != nil {
		l.metrics.ConnectionsActive.Inc()
		l.metrics.ConnectionsTotal.Inc()
	}
	if l.connCount != nil {
		atomic.AddInt64(l.connCount, 1)
	}

	var writeWg sync.WaitGroup
	writeWg.Add(1)
	go func() {
		defer writeWg.Done()
		l.writePump(sess)
	}()

	l.readPump(sess)

	sess.SetState(session.Closing)
	close(sess.SendQueue)
	writeWg.Wait()

	sess.SetState(session.Closed)
	l.sessions.Unregister(sess.ID)
	conn.Close()
	if l.metrics != nil {
		l.metrics.ConnectionsActive.Dec()
	}
	if l.connCount != nil {
		atomic.AddInt64(l.connCount, -1)
	}
}

// readPump owns the session's RecvBuffer: it fills it from the socket,
// extracts complete {Header, body} frames, and dispatches each one before
// asking for more bytes.
func (l *Listener) readPump(sess *session.Session) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Uint64("session_id", sess.ID).Msg("readPump panicked, closing session")
		}
	}()

	for {
		if sess.RecvBuf.FreeSpace() == 0 {
			sess.RecvBuf.Clean()
			if sess.RecvBuf.FreeSpace() == 0 {
				l.logger.Warn().Uint64("session_id", sess.ID).Msg("recv buffer full of an unconsumed frame, closing session")
				return
			}
		}

		sess.Conn.SetReadDeadline(time.Now().Add(readDeadline))

		n, err := sess.Conn.Read(sess.RecvBuf.WriteSlice())
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Debug().Err(err).Uint64("session_id", sess.ID).Msg("read error, closing session")
			}
			return
		}
		sess.RecvBuf.Advance(n)

		if !l.drainFrames(sess) {
			return
		}

		sess.RecvBuf.Clean()
	}
}

// drainFrames extracts every complete frame currently buffered, copies each
// into a pooled Packet, and posts it to the logic dispatcher. Returns false
// if a protocol violation forced the session shut.
func (l *Listener) drainFrames(sess *session.Session) bool {
	for {
		unread := sess.RecvBuf.Unread()
		if len(unread) < packet.HeaderSize {
			return true
		}

		hdr := packet.DecodeHeader(unread)
		if !hdr.Valid() {
			l.logger.Warn().Uint64("session_id", sess.ID).Uint16("declared_size", hdr.Size).Msg("invalid frame size, closing session")
			return false
		}
		if len(unread) < int(hdr.Size) {
			return true // wait for the rest of the frame
		}

		frame := unread[:hdr.Size]

		if !sess.RateLimiter.TryConsume(1) {
			if l.metrics != nil {
				l.metrics.RateLimitDrops.Inc()
				l.metrics.PacketsDropped.WithLabelValues("rate_limited").Inc()
			}
			sess.RecvBuf.Consume(int(hdr.Size))
			continue
		}

		if l.metrics != nil {
			l.metrics.PacketsFramed.Inc()
			l.metrics.BytesReceived.Add(float64(hdr.Size))
		}

		// Copy the frame into a pooled Packet and post it through the logic
		// dispatcher instead of running the handler inline here: this is the
		// per-connection I/O goroutine, and the handler registry's handlers
		// are only safe to run on the single logic thread.
		pkt, ok := l.pool.Acquire(int(hdr.Size))
		if !ok {
			l.logger.Warn().Uint64("session_id", sess.ID).Msg("packet pool exhausted, dropping inbound frame")
			if l.metrics != nil {
				l.metrics.PacketsDropped.WithLabelValues("pool_exhausted").Inc()
			}
			sess.RecvBuf.Consume(int(hdr.Size))
			continue
		}
		copy(pkt.Bytes(), frame)
		pkt.UsedSize = int(hdr.Size)
		id := hdr.ID

		if !l.dispatcher.Post(func() {
			if sess.State() == session.Connected {
				l.handlers.Dispatch(sess, id, pkt.Body())
			}
			pkt.Release()
		}) {
			pkt.Release()
			l.logger.Warn().Uint64("session_id", sess.ID).Uint16("packet_id", id).Msg("logic dispatcher queue full, dropping inbound frame")
			if l.metrics != nil {
				l.metrics.PacketsDropped.WithLabelValues("dispatcher_overload").Inc()
			}
		}

		sess.RecvBuf.Consume(int(hdr.Size))
	}
}

// writePump drains the session's SendQueue, batching whatever is queued at
// the time of wakeup into one buffered-writer flush, mirroring the
// teacher's batched writePump.
func (l *Listener) writePump(sess *session.Session) {
	w := bufio.NewWriter(sess.Conn)

	for pkt := range sess.SendQueue {
		sess.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if !writeAndRelease(w, pkt, l.logger, sess.ID) {
			drainRemaining(sess.SendQueue)
			return
		}

		n := len(sess.SendQueue)
		for i := 0; i < n; i++ {
			next := <-sess.SendQueue
			if !writeAndRelease(w, next, l.logger, sess.ID) {
				drainRemaining(sess.SendQueue)
				return
			}
		}

		if err := w.Flush(); err != nil {
			l.logger.Debug().Err(err).Uint64("session_id", sess.ID).Msg("flush failed")
			drainRemaining(sess.SendQueue)
			return
		}
	}
}

func writeAndRelease(w *bufio.Writer, pkt *packet.Packet, logger zerolog.Logger, sessionID uint64) bool {
	defer pkt.Release()
	_, err := w.Write(pkt.Bytes())
	if err != nil {
		logger.Debug().Err(err).Uint64("session_id", sessionID).Msg("write failed")
		return false
	}
	return true
}

func drainRemaining(queue chan *packet.Packet) {
	for pkt := range queue {
		pkt.Release()
	}
}
