package chatloop

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestListenTCPBindsAndAccepts(t *testing.T) {
	fd, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer unix.Close(fd)

	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("unexpected sockaddr type %T", sa)
	}
	if in4.Port == 0 {
		t.Fatalf("expected a non-zero ephemeral port")
	}

	clientFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("client socket: %v", err)
	}
	defer unix.Close(clientFd)

	if err := unix.Connect(clientFd, in4); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var acceptedFd int
	deadline := time.Now().Add(time.Second)
	for {
		acceptedFd, _, err = unix.Accept4(fd, unix.SOCK_NONBLOCK)
		if err == nil {
			break
		}
		if err != unix.EAGAIN || time.Now().After(deadline) {
			t.Fatalf("accept: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	defer unix.Close(acceptedFd)
}

func TestListenTCPRejectsInvalidAddress(t *testing.T) {
	if _, err := ListenTCP("not-an-address"); err == nil {
		t.Fatalf("expected an error for an invalid listen address")
	}
}
