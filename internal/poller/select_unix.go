//go:build unix

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectPoller is the final fallback named in the spec's preference order.
// select(2) caps the fds it can watch at FD_SETSIZE; fine for this
// server's scale, not meant for high connection counts.
type selectPoller struct{}

func newSelectPoller() (Poller, error) {
	return selectPoller{}, nil
}

func (selectPoller) Wait(fds []int, timeout time.Duration) ([]int, error) {
	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}
	var set unix.FdSet
	maxFd := 0
	for _, fd := range fds {
		fdSetBit(&set, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	_, err := unix.Select(maxFd+1, &set, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	var ready []int
	for _, fd := range fds {
		if fdIsSet(&set, fd) {
			ready = append(ready, fd)
		}
	}
	return ready, nil
}

func (selectPoller) Close() error { return nil }

// fdSetWordBits assumes a 64-bit-word fd_set layout (true on Linux and
// most 64-bit BSDs via golang.org/x/sys/unix). select is the spec's
// last-resort fallback behind epoll and poll, both of which are preferred
// whenever available, so this narrower assumption only matters on
// platforms that support neither.
const fdSetWordBits = 64

func fdSetBit(set *unix.FdSet, fd int) {
	set.Bits[fd/fdSetWordBits] |= 1 << (uint(fd) % fdSetWordBits)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdSetWordBits]&(1<<(uint(fd)%fdSetWordBits)) != 0
}
