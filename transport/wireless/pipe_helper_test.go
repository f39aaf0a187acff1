package wireless

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// osPipe gives control-frame tests a real, pollable descriptor to write a
// handshake/response to without standing up an actual L2CAP socket.
func osPipe(t *testing.T) (*os.File, *os.File, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w, nil
}

// socketPair stands in for the bidirectional control socket: unlike an
// os.Pipe's one-way ends, both fds here can be read from and written to,
// matching what sendEnableMe needs to both send and await a reply.
func socketPair(t *testing.T) (transportFD, peerFD int) {
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
