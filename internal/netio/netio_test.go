package netio

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/handler"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/session"
)

func newTestListener(t *testing.T, handlers *handler.Registry) (*Listener, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := Config{
		MaxConnections:  4,
		RecvBufferSize:  4096,
		RateLimitBurst:  100,
		RateLimitRefill: 100,
		SendQueueDepth:  16,
	}
	d := dispatch.New(64, 48, zerolog.Nop())
	d.Run()
	t.Cleanup(d.Stop)

	l := &Listener{
		cfg:        cfg,
		logger:     zerolog.Nop(),
		sessions:   session.NewRegistry(),
		handlers:   handlers,
		dispatcher: d,
		pool:       packet.NewPool(64),
		sem:        make(chan struct{}, cfg.MaxConnections),
	}
	l.ln = ln

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			l.wg.Add(1)
			select {
			case l.sem <- struct{}{}:
			default:
				conn.Close()
				l.wg.Done()
				continue
			}
			go l.handleConn(conn)
		}
	}()
	t.Cleanup(cancel)

	return l, ln.Addr().String()
}

func frame(id uint16, body []byte) []byte {
	buf := make([]byte, packet.HeaderSize+len(body))
	packet.EncodeHeader(buf, packet.Header{Size: uint16(len(buf)), ID: id})
	copy(buf[packet.HeaderSize:], body)
	return buf
}

func TestReadPumpDispatchesFramedPacket(t *testing.T) {
	received := make(chan []byte, 1)
	handlers := handler.NewRegistry(zerolog.Nop())
	handlers.Register(42, func(s *session.Session, body []byte) error {
		cp := append([]byte(nil), body...)
		received <- cp
		return nil
	})

	_, addr := newTestListener(t, handlers)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(frame(42, []byte("hello"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case body := <-received:
		if string(body) != "hello" {
			t.Fatalf("body = %q, want %q", body, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestReadPumpClosesSessionOnInvalidHeader(t *testing.T) {
	handlers := handler.NewRegistry(zerolog.Nop())
	_, addr := newTestListener(t, handlers)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bad := make([]byte, packet.HeaderSize)
	binary.LittleEndian.PutUint16(bad[0:2], 1) // size smaller than HeaderSize
	binary.LittleEndian.PutUint16(bad[2:4], 1)
	if _, err := conn.Write(bad); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected server to close the connection after an invalid header")
	}
}

func TestSendDeliversQueuedPacketToPeer(t *testing.T) {
	sessions := make(chan *session.Session, 1)
	handlers := handler.NewRegistry(zerolog.Nop())
	handlers.Register(1, func(s *session.Session, body []byte) error {
		select {
		case sessions <- s:
		default:
		}
		return nil
	})

	_, addr := newTestListener(t, handlers)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(frame(1, nil)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got *session.Session
	select {
	case got = <-sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached handler")
	}

	pool := packet.NewPool(4)
	pkt, ok := pool.Acquire(packet.HeaderSize + 2)
	if !ok {
		t.Fatal("acquire failed")
	}
	pkt.UsedSize = packet.HeaderSize + 2
	packet.EncodeHeader(pkt.Bytes(), packet.Header{Size: packet.HeaderSize + 2, ID: 9})
	copy(pkt.Body(), []byte("ok"))
	if !got.Send(pkt) {
		t.Fatal("Send reported failure on a live session")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, packet.HeaderSize+2)
	if _, err := readFull(conn, buf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	hdr := packet.DecodeHeader(buf)
	if hdr.ID != 9 {
		t.Fatalf("response id = %d, want 9", hdr.ID)
	}
	if string(buf[packet.HeaderSize:]) != "ok" {
		t.Fatalf("response body = %q, want %q", buf[packet.HeaderSize:], "ok")
	}
}

type denyGuard struct{}

func (denyGuard) ShouldAcceptConnection() (bool, string) { return false, "test denial" }

// TestServeRejectsConnectionWhenGuardDenies reserves a free port, hands it
// to a Listener configured with an always-deny Guard, and confirms a
// dialed connection is closed by the server rather than handed a session.
func TestServeRejectsConnectionWhenGuardDenies(t *testing.T) {
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := reserved.Addr().String()
	reserved.Close()

	cfg := Config{
		Addr:            addr,
		MaxConnections:  4,
		RecvBufferSize:  4096,
		RateLimitBurst:  100,
		RateLimitRefill: 100,
		SendQueueDepth:  16,
	}
	l := New(cfg, session.NewRegistry(), handler.NewRegistry(zerolog.Nop()), nil, packet.NewPool(64), nil, denyGuard{}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the server to close the connection rejected by the guard")
	}

	cancel()
	<-serveErr
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
