// Package session implements the per-connection state machine: role
// identification (camera or dispatcher), heartbeats, and translating
// wire messages into calls against the engine and camera registry.
//
// Every connection gets its own goroutine reading from the socket, per
// spec.md §5. Writes are serialized through a small mutex-guarded
// writer since up to three independent goroutines (reader, heartbeat
// ticker, dispatcher ticket pump) may need to write a frame.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"speedd/internal/camera"
	"speedd/internal/dispatch"
	"speedd/internal/engine"
	"speedd/internal/metrics"
	"speedd/internal/wire"
)

type role int

const (
	roleUnidentified role = iota
	roleCamera
	roleDispatcher
)

func (r role) String() string {
	switch r {
	case roleCamera:
		return "camera"
	case roleDispatcher:
		return "dispatcher"
	default:
		return "unidentified"
	}
}

// frameWriter serializes writes of wire frames across goroutines. Once
// a write fails the writer is poisoned: further writes are skipped, so
// a half-dead connection doesn't spend time retrying a broken pipe.
type frameWriter struct {
	mu   sync.Mutex
	w    io.Writer
	dead bool
}

func (f *frameWriter) writeTicket(t wire.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return nil
	}
	if err := wire.EncodeTicket(f.w, t); err != nil {
		f.dead = true
		return err
	}
	return nil
}

func (f *frameWriter) writeHeartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return nil
	}
	if err := wire.EncodeHeartbeat(f.w); err != nil {
		f.dead = true
		return err
	}
	return nil
}

func (f *frameWriter) writeError(msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return nil
	}
	f.dead = true
	return wire.EncodeError(f.w, wire.Error{Msg: msg})
}

// Conn drives a single accepted TCP connection end to end.
type Conn struct {
	id      uuid.UUID
	nc      net.Conn
	log     logrus.FieldLogger
	engine  *engine.Engine
	cameras *camera.Registry
	mx      *metrics.Metrics

	writer *frameWriter

	role role

	heartbeatSet bool

	camHandle        *camera.Handle
	camRoad, camMile uint16
	camLimit         uint16
}

// New wraps an accepted connection. Call Run to drive it; Run takes
// ownership of nc and closes it before returning.
func New(nc net.Conn, log logrus.FieldLogger, eng *engine.Engine, cams *camera.Registry, mx *metrics.Metrics) *Conn {
	id := uuid.New()
	return &Conn{
		id:      id,
		nc:      nc,
		log:     log.WithField("conn_id", id),
		engine:  eng,
		cameras: cams,
		mx:      mx,
		writer:  &frameWriter{w: nc},
	}
}

// Run reads and handles messages until the connection closes or ctx is
// cancelled. It never returns an error the caller needs to act on;
// every failure is logged and results in the connection closing.
func (c *Conn) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.nc.Close()
	defer c.releaseRole()

	go func() {
		<-ctx.Done()
		c.nc.Close()
	}()

	c.log.Debug("session: connection accepted")

	for {
		msg, err := wire.Decode(c.nc)
		if err != nil {
			c.handleDecodeError(err)
			return
		}

		if illegal := c.dispatch(ctx, msg); illegal != "" {
			c.mx.ProtocolError("illegal-message")
			_ = c.writer.writeError(illegal)
			c.log.WithField("reason", illegal).Info("session: protocol error, closing")
			return
		}
	}
}

func (c *Conn) handleDecodeError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.log.Debug("session: connection closed by peer")
		return
	}
	if errors.Is(err, net.ErrClosed) {
		return
	}

	c.mx.ProtocolError("malformed-message")
	c.log.WithError(err).Info("session: malformed message, closing")
	_ = c.writer.writeError(fmt.Sprintf("malformed message: %v", err))
}

// dispatch handles one decoded message. A non-empty return value is a
// human-readable protocol violation the caller should report to the
// client via an Error frame before closing.
func (c *Conn) dispatch(ctx context.Context, msg wire.Message) string {
	switch m := msg.(type) {
	case wire.WantHeartbeat:
		return c.handleWantHeartbeat(ctx, m)
	case wire.IAmCamera:
		return c.handleIAmCamera(m)
	case wire.IAmDispatcher:
		return c.handleIAmDispatcher(ctx, m)
	case wire.Plate:
		return c.handlePlate(ctx, m)
	default:
		return fmt.Sprintf("unexpected message type %T", msg)
	}
}

func (c *Conn) handleWantHeartbeat(ctx context.Context, m wire.WantHeartbeat) string {
	if c.heartbeatSet {
		return "WantHeartbeat sent more than once"
	}
	c.heartbeatSet = true
	if m.Interval == 0 {
		return ""
	}

	interval := time.Duration(m.Interval) * 100 * time.Millisecond
	go c.runHeartbeat(ctx, interval)
	return ""
}

func (c *Conn) runHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writer.writeHeartbeat(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) handleIAmCamera(m wire.IAmCamera) string {
	if c.role != roleUnidentified {
		return fmt.Sprintf("already identified as %s", c.role)
	}

	handle, err := c.cameras.Register(m.Road, m.Limit)
	if err != nil {
		return err.Error()
	}

	c.role = roleCamera
	c.camHandle = handle
	c.camRoad, c.camMile, c.camLimit = m.Road, m.Mile, m.Limit
	c.mx.ConnectionOpened("camera")
	c.log.WithFields(logrus.Fields{"road": m.Road, "mile": m.Mile, "limit": m.Limit}).Info("session: camera identified")
	return ""
}

func (c *Conn) handleIAmDispatcher(ctx context.Context, m wire.IAmDispatcher) string {
	if c.role != roleUnidentified {
		return fmt.Sprintf("already identified as %s", c.role)
	}

	c.role = roleDispatcher
	sink := c.engine.RegisterDispatcher(ctx, c.id, m.Roads)
	c.mx.ConnectionOpened("dispatcher")
	c.log.WithField("roads", m.Roads).Info("session: dispatcher identified")

	go c.runDispatcherPump(ctx, sink)
	return ""
}

func (c *Conn) runDispatcherPump(ctx context.Context, sink *dispatch.Sink) {
	for {
		t, ok := sink.Next(ctx)
		if !ok {
			return
		}
		if err := c.writer.writeTicket(t); err != nil {
			return
		}
	}
}

func (c *Conn) handlePlate(ctx context.Context, m wire.Plate) string {
	if c.role != roleCamera {
		return "Plate sent by a connection that never identified as a camera"
	}
	c.engine.SubmitPlate(ctx, c.camRoad, c.camMile, c.camLimit, m)
	return ""
}

func (c *Conn) releaseRole() {
	switch c.role {
	case roleCamera:
		c.camHandle.Release()
		c.mx.ConnectionClosed("camera")
	case roleDispatcher:
		c.engine.UnregisterDispatcher(context.Background(), c.id)
		c.mx.ConnectionClosed("dispatcher")
	}
}
