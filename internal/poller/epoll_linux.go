//go:build linux

package poller

import "syscall"

// epollRDHUP isn't exposed by the syscall package on all archs; its value is
// stable across Linux architectures.
const epollRDHUP = 0x2000

type epollPoller struct {
	epfd   int
	events []syscall.EpollEvent
}

// New creates the platform Poller (epoll, Linux).
func New() (Poller, error) {
	epfd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]syscall.EpollEvent, 1024),
	}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := syscall.EpollEvent{
		Events: syscall.EPOLLIN | epollRDHUP,
		Fd:     int32(fd),
	}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, writable bool) error {
	events := uint32(syscall.EPOLLIN) | epollRDHUP
	if writable {
		events |= syscall.EPOLLOUT
	}
	ev := syscall.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMillis int) ([]Event, error) {
	n, err := syscall.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == syscall.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(syscall.EPOLLIN|epollRDHUP|syscall.EPOLLHUP|syscall.EPOLLERR) != 0,
			Writable: e.Events&syscall.EPOLLOUT != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return syscall.Close(p.epfd)
}

func setNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
