//go:build !unix

package poller

func newSelectPoller() (Poller, error) {
	return nil, ErrUnsupported
}
