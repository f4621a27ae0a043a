package chatloop

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/benjolitz/notshoutbox/internal/chatmetrics"
	"github.com/benjolitz/notshoutbox/internal/history"
	"github.com/benjolitz/notshoutbox/internal/poller"
	"github.com/benjolitz/notshoutbox/internal/wsconn"
)

func newTestLoop(t *testing.T, hist *history.History) *Loop {
	t.Helper()
	p, _, err := poller.New()
	if err != nil {
		t.Fatalf("poller.New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	listenerFds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(listenerFds[0])
		_ = unix.Close(listenerFds[1])
	})

	return New(listenerFds[0], hist, chatmetrics.New(), p, nil, 0)
}

// addReadyClient appends a new Ready client connection to l, backed by a
// real non-blocking socketpair, and returns the Connection plus the peer fd
// a test can read replies/broadcasts from.
func addReadyClient(t *testing.T, l *Loop, hist *history.History) (*wsconn.Connection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	client := wsconn.New(fds[0], wsconn.RoleClient, hist, 0, nil)
	client.State = wsconn.StateReady
	l.conns = append(l.conns, client)
	l.fds = append(l.fds, fds[0])
	return client, fds[1]
}

func readWithTimeout(t *testing.T, fd int, timeout time.Duration) []byte {
	t.Helper()
	buf := make([]byte, 4096)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fd, buf)
		if err == nil {
			return buf[:n]
		}
		if err == unix.EAGAIN {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		t.Fatalf("read: %v", err)
	}
	t.Fatalf("timed out waiting for data on fd %d", fd)
	return nil
}

func TestDispatchBroadcastsToOtherReadyPeers(t *testing.T) {
	hist := history.New(50, 5)
	l := newTestLoop(t, hist)

	sender, senderPeerFd := addReadyClient(t, l, hist)
	_, peer2Fd := addReadyClient(t, l, hist)
	_, peer3Fd := addReadyClient(t, l, hist)

	l.dispatch(sender, []byte(`{"text":"hi"}`))

	for _, fd := range []int{peer2Fd, peer3Fd} {
		if got := readWithTimeout(t, fd, time.Second); len(got) == 0 {
			t.Fatalf("expected a broadcast frame on peer fd %d", fd)
		}
	}
	if hist.Len() != 1 {
		t.Fatalf("history len = %d, want 1", hist.Len())
	}

	if n, err := unix.Read(senderPeerFd, make([]byte, 16)); err != unix.EAGAIN || n != 0 {
		t.Fatalf("sender should not receive its own broadcast, got n=%d err=%v", n, err)
	}
}

func TestDispatchCmdKeyRepliesOnlyToSender(t *testing.T) {
	hist := history.New(50, 5)
	hist.Append([]byte("A"))
	hist.Append([]byte("B"))
	l := newTestLoop(t, hist)

	sender, senderPeerFd := addReadyClient(t, l, hist)
	_, otherPeerFd := addReadyClient(t, l, hist)

	l.dispatch(sender, []byte(`{"cmd":"getList"}`))

	if got := readWithTimeout(t, senderPeerFd, time.Second); len(got) == 0 {
		t.Fatalf("expected backlog replay on sender's fd")
	}
	if n, err := unix.Read(otherPeerFd, make([]byte, 16)); err != unix.EAGAIN || n != 0 {
		t.Fatalf("a cmd request must not reach other peers, got n=%d err=%v", n, err)
	}
}

func TestDispatchDropsInvalidJSON(t *testing.T) {
	hist := history.New(50, 5)
	l := newTestLoop(t, hist)
	sender, _ := addReadyClient(t, l, hist)

	l.dispatch(sender, []byte("not json"))

	if hist.Len() != 0 {
		t.Fatalf("invalid JSON must not be stored, history len = %d", hist.Len())
	}
}

func TestPruneRemovesClosedConnections(t *testing.T) {
	hist := history.New(50, 5)
	l := newTestLoop(t, hist)
	client, _ := addReadyClient(t, l, hist)
	client.State = wsconn.StateClosed

	l.prune()

	for _, c := range l.conns {
		if c == client {
			t.Fatalf("closed connection should have been pruned")
		}
	}
}
