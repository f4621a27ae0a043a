// Package chatloop implements the single-threaded, readiness-driven event
// loop (spec §4.4): one poller call per tick, dispatch of readable events to
// each connection's current step, and the chat dispatch policy (history
// replay on a "cmd" message, broadcast otherwise).
package chatloop

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/benjolitz/notshoutbox/internal/chatmetrics"
	"github.com/benjolitz/notshoutbox/internal/history"
	"github.com/benjolitz/notshoutbox/internal/poller"
	"github.com/benjolitz/notshoutbox/internal/wsconn"
	"github.com/benjolitz/notshoutbox/internal/wsframe"
)

// TickTimeout is the poller's per-tick block budget (spec: "a short timeout
// (≈ 10 ms)").
const TickTimeout = 10 * time.Millisecond

// livenessPulse is the cadence of the optional liveness log line, matching
// the source's "approximately every two seconds" behavior.
const livenessPulse = 2 * time.Second

// Loop owns the accept-mode listener connection, every accepted client
// connection (in insertion order, oldest first), the shared History, and
// the metrics bundle every tick updates.
type Loop struct {
	listener *wsconn.Connection
	conns    []*wsconn.Connection // insertion order; index 0 is the listener
	fds      []int                // kept in lockstep with conns for poller input

	history *history.History
	metrics *chatmetrics.Metrics
	poll    poller.Poller
	log     *zap.Logger
	bufSize int

	lastPulse time.Time
}

// New builds a Loop around an already-bound, already-listening, non-blocking
// socket fd. hist and m are shared for the loop's lifetime. bufSize is the
// per-read buffer size handed to every accepted client (0 selects
// wsconn.DefaultBufSize).
func New(listenFd int, hist *history.History, m *chatmetrics.Metrics, p poller.Poller, log *zap.Logger, bufSize int) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	listener := wsconn.New(listenFd, wsconn.RoleListener, hist, bufSize, log)
	return &Loop{
		listener: listener,
		conns:    []*wsconn.Connection{listener},
		fds:      []int{listenFd},
		history:  hist,
		metrics:  m,
		bufSize:  bufSize,
		poll:     p,
		log:      log,
	}
}

// Run drives ticks until stop is closed or the poller returns a fatal error.
func (l *Loop) Run(stop <-chan struct{}) error {
	l.lastPulse = time.Time{}
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if err := l.Tick(); err != nil {
			return err
		}
	}
}

// Tick runs exactly one iteration of the algorithm in spec §4.4: poll,
// dispatch to every connection in insertion order, accept at most one new
// client per listener, then prune Closed connections.
func (l *Loop) Tick() error {
	ready, err := l.poll.Wait(l.fds, TickTimeout)
	if err != nil {
		return err
	}
	readySet := make(map[int]struct{}, len(ready))
	for _, fd := range ready {
		readySet[fd] = struct{}{}
	}

	for _, c := range l.conns {
		if _, isReady := readySet[c.Fd]; !isReady {
			continue
		}
		if c.Role == wsconn.RoleListener {
			l.acceptOne(c)
			continue
		}
		l.step(c)
	}

	l.prune()
	l.pulse()
	l.metrics.ActiveConnections.Set(float64(len(l.conns) - 1))
	l.metrics.HistorySize.Set(float64(l.history.Len()))
	return nil
}

// acceptOne accepts at most one new connection per tick per listener (spec
// §4.4 step 2), wraps it in a client Connection, and appends it to the loop.
func (l *Loop) acceptOne(listener *wsconn.Connection) {
	fd, _, err := unix.Accept4(listener.Fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		l.log.Warn("accept failed", zap.Error(err))
		return
	}
	client := wsconn.New(fd, wsconn.RoleClient, l.history, l.bufSize, l.log)
	l.conns = append(l.conns, client)
	l.fds = append(l.fds, fd)
	l.log.Debug("accepted connection", zap.String("conn", client.ID.String()))
}

// step invokes one cooperative step on c and dispatches every message it
// yields, in arrival order, before moving to the next connection (spec: "in
// the order decoded, before the loop advances to the next connection").
func (l *Loop) step(c *wsconn.Connection) {
	handshaking := c.State == wsconn.StateAwaitingHandshake
	messages, err := c.OnReady()
	for _, msg := range messages {
		l.metrics.RecordFrameDecoded(c.Dialect.String())
		l.dispatch(c, msg)
	}
	if err != nil {
		reason := "protocol-error"
		logAt := l.log.Error
		if errors.Is(err, wsframe.ErrConnectionClosed) {
			reason = "peer-eof"
			logAt = l.log.Info
		} else if handshaking {
			l.metrics.HandshakeFailures.Inc()
		}
		l.metrics.RecordConnectionClosed(reason)
		logAt("connection removed", zap.String("conn", c.ID.String()), zap.Error(err))
	}
}

// dispatch implements spec §4.4's policy: a JSON object with a "cmd" key is
// a history request (reply to the sender only, chronological order);
// anything else valid is appended to History and broadcast to every other
// Ready connection. Invalid JSON is a DecodeError: logged, dropped, never
// stored or broadcast.
func (l *Loop) dispatch(sender *wsconn.Connection, payload []byte) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		l.log.Debug("dropping undecodable payload", zap.String("conn", sender.ID.String()), zap.Error(err))
		return
	}

	if _, hasCmd := obj["cmd"]; hasCmd {
		cursor := l.history.NewCursor()
		for _, backlogPayload := range cursor.Chronological() {
			if err := sender.Send(backlogPayload); err != nil {
				l.log.Debug("backlog replay failed", zap.String("conn", sender.ID.String()), zap.Error(err))
				return
			}
		}
		return
	}

	l.history.Append(payload)
	for _, peer := range l.conns {
		if peer == sender || peer.Role == wsconn.RoleListener || peer.State != wsconn.StateReady {
			continue
		}
		l.metrics.BroadcastFanout.Inc()
		if err := peer.Send(payload); err != nil {
			l.log.Debug("broadcast to peer failed", zap.String("conn", peer.ID.String()), zap.Error(err))
		}
	}
}

// prune drops every Closed connection from conns/fds, closing its socket
// first. The listener (index 0) is never pruned by this loop's own
// bookkeeping; Close on the listener is the caller's responsibility at
// shutdown.
func (l *Loop) prune() {
	kept := l.conns[:0:0]
	keptFds := l.fds[:0:0]
	for i, c := range l.conns {
		if c.State == wsconn.StateClosed && c.Role != wsconn.RoleListener {
			_ = c.Close()
			continue
		}
		kept = append(kept, c)
		keptFds = append(keptFds, l.fds[i])
	}
	l.conns = kept
	l.fds = keptFds
}

// pulse emits the optional liveness marker roughly every two seconds.
func (l *Loop) pulse() {
	now := time.Now()
	if l.lastPulse.IsZero() || now.Sub(l.lastPulse) >= livenessPulse {
		l.log.Info("tick", zap.Int("connections", len(l.conns)-1), zap.Int("history_size", l.history.Len()))
		l.lastPulse = now
	}
}
