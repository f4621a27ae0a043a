package chatloop

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// ListenTCP creates a raw, non-blocking IPv4 TCP listening socket bound to
// addr (host:port, e.g. ":8080"), with SO_REUSEADDR set and a backlog of 50
// (spec §6: "TCP listener on port 8080 ... SO_REUSEADDR ... listen(backlog
// =50)"). It returns the bare file descriptor so it can be handed straight
// to wsconn.New/poller.Wait without going through net.Conn.
func ListenTCP(addr string) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, fmt.Errorf("chatloop: invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("chatloop: invalid port in %q: %w", addr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("chatloop: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chatloop: setsockopt SO_REUSEADDR: %w", err)
	}

	var ip [4]byte
	if host != "" {
		addr := net.ParseIP(host)
		if addr == nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("chatloop: invalid listen host %q", host)
		}
		v4 := addr.To4()
		if v4 == nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("chatloop: only IPv4 listen addresses are supported, got %q", host)
		}
		copy(ip[:], v4)
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chatloop: bind %q: %w", addr, err)
	}
	const listenBacklog = 50
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chatloop: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chatloop: set nonblocking: %w", err)
	}
	return fd, nil
}
