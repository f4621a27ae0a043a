//go:build unix

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the first fallback: a fresh poll(2) set is built from the
// caller's fds on every call, which is simple and correct for the small
// connection counts this server is scoped for.
type pollPoller struct{}

func newPollPoller() (Poller, error) {
	return pollPoller{}, nil
}

func (pollPoller) Wait(fds []int, timeout time.Duration) ([]int, error) {
	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	_, err := unix.Poll(pfds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	var ready []int
	for _, pfd := range pfds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, int(pfd.Fd))
		}
	}
	return ready, nil
}

func (pollPoller) Close() error { return nil }
