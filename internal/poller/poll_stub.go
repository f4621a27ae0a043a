//go:build !unix

package poller

func newPollPoller() (Poller, error) {
	return nil, ErrUnsupported
}
