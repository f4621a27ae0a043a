//go:build unix

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func testPollerDetectsReadability(t *testing.T, p Poller) {
	a, b := socketpair(t)

	ready, err := p.Wait([]int{a, b}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no readiness before any write, got %v", ready)
	}

	if _, err := unix.Write(b, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ready, err = p.Wait([]int{a, b}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 || ready[0] != a {
		t.Fatalf("expected [%d] ready, got %v", a, ready)
	}
}

func TestNewPicksAvailableBackend(t *testing.T) {
	p, strategy, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	if strategy == "" {
		t.Fatalf("expected a non-empty strategy name")
	}
	testPollerDetectsReadability(t, p)
}

func TestPollPollerDetectsReadability(t *testing.T) {
	p, err := newPollPoller()
	if err != nil {
		t.Skipf("poll backend unavailable: %v", err)
	}
	defer p.Close()
	testPollerDetectsReadability(t, p)
}

func TestSelectPollerDetectsReadability(t *testing.T) {
	p, err := newSelectPoller()
	if err != nil {
		t.Skipf("select backend unavailable: %v", err)
	}
	defer p.Close()
	testPollerDetectsReadability(t, p)
}
