// Package comm implements the request/reply wire transport between the
// master and its controllers. The original used a ZeroMQ REP/REQ pair;
// this implementation multiplexes many controller WebSocket connections
// into the single channel the master dispatch loop reads from one message
// at a time, preserving the "one reply before the next receive" contract
// per connection while still serving many controllers concurrently.
package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/protocol"
)

// ErrTimeout is returned by Recv when no message arrives within the poll
// timeout — not an error, just an empty poll.
var ErrTimeout = errors.New("comm: receive timeout")

// Envelope pairs a received message with the means to reply to its sender
// before the master may process anything else from that connection. If
// the frame failed to decode, DecodeErr is set and Msg is zero — the
// dispatch loop still owes exactly one reply (ACKNOWLEDGE) to keep the
// connection balanced.
type Envelope struct {
	Msg       protocol.Message
	DecodeErr error
	replyCh   chan<- string
}

// Reply sends the single required reply for this envelope's request.
func (e Envelope) Reply(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	e.replyCh <- frame
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Master is the bind side of the comm endpoint.
type Master struct {
	addr     string
	listener net.Listener
	server   *http.Server
	incoming chan Envelope
}

// NewMaster creates a Master bound to target:port. Call Serve to start
// accepting connections.
func NewMaster(target string, port int) *Master {
	return &Master{
		addr:     fmt.Sprintf("%s:%d", target, port),
		incoming: make(chan Envelope, 64),
	}
}

// Serve accepts controller connections until ctx is cancelled. Each
// connection runs its own strict recv/reply loop, funnelling every
// received message into the shared Recv channel.
func (m *Master) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("comm: bind %s: %w", m.addr, err)
	}
	m.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleConn)
	m.server = &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- m.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = m.server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (m *Master) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("comm_master").Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		replyCh := make(chan string, 1)
		msg, decodeErr := protocol.Decode(string(frame))
		m.incoming <- Envelope{Msg: msg, DecodeErr: decodeErr, replyCh: replyCh}

		reply := <-replyCh
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// Recv blocks for up to timeout waiting for the next envelope. Returns
// ErrTimeout if nothing arrived in time — the caller must not treat this
// as fatal.
func (m *Master) Recv(timeout time.Duration) (Envelope, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case env := <-m.incoming:
		return env, nil
	case <-t.C:
		return Envelope{}, ErrTimeout
	}
}

// Close stops accepting new connections.
func (m *Master) Close() error {
	if m.server != nil {
		return m.server.Close()
	}
	return nil
}
