//go:build linux

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller wraps a single epoll instance, reconciling its registered
// interest set against whatever fds the caller passes to Wait each tick.
type epollPoller struct {
	epfd       int
	registered map[int]struct{}
}

func newEpollPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, registered: make(map[int]struct{})}, nil
}

func (p *epollPoller) Wait(fds []int, timeout time.Duration) ([]int, error) {
	want := make(map[int]struct{}, len(fds))
	for _, fd := range fds {
		want[fd] = struct{}{}
		if _, ok := p.registered[fd]; !ok {
			ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
				return nil, err
			}
			p.registered[fd] = struct{}{}
		}
	}
	for fd := range p.registered {
		if _, ok := want[fd]; !ok {
			_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
			delete(p.registered, fd)
		}
	}

	events := make([]unix.EpollEvent, len(fds)+1)
	n, err := unix.EpollWait(p.epfd, events, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	return ready, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
