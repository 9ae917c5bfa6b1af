package transport

import (
	"syscall"
	"testing"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	return fds[0], fds[1]
}

func TestPlainSendRecvRoundTrip(t *testing.T) {
	a, b := socketpair(t)
	pa := NewPlain(a)
	pb := NewPlain(b)
	defer pa.Close()
	defer pb.Close()

	n, err := pa.Send([]byte("hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 5 {
		t.Fatalf("wrote %d bytes, want 5", n)
	}

	buf := make([]byte, 16)
	n, err = pb.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestPlainRecvWouldBlockWithNoData(t *testing.T) {
	a, b := socketpair(t)
	pa := NewPlain(a)
	pb := NewPlain(b)
	defer pa.Close()
	defer pb.Close()

	buf := make([]byte, 16)
	_, err := pb.Recv(buf)
	if err != ErrWouldBlock {
		t.Fatalf("got %v, want ErrWouldBlock", err)
	}
}

func TestPlainRecvAfterCloseReturnsClosed(t *testing.T) {
	a, err := func() (int, error) {
		fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
		if err != nil {
			return 0, err
		}
		syscall.Close(fds[1])
		syscall.SetNonblock(fds[0], true)
		return fds[0], nil
	}()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	p := NewPlain(a)
	defer p.Close()

	buf := make([]byte, 16)
	_, err = p.Recv(buf)
	if err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed after peer hangup", err)
	}
}
