//go:build darwin

package poller

import "syscall"

type kqueuePoller struct {
	kqfd      int
	events    []syscall.Kevent_t
	writeWait map[int]bool
}

// New creates the platform Poller (kqueue, Darwin).
func New() (Poller, error) {
	kqfd, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:      kqfd,
		events:    make([]syscall.Kevent_t, 1024),
		writeWait: make(map[int]bool),
	}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_ADD | syscall.EV_ENABLE,
	}
	_, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Modify(fd int, writable bool) error {
	wasWatching := p.writeWait[fd]
	if writable == wasWatching {
		return nil
	}

	flags := syscall.EV_ADD | syscall.EV_ENABLE
	if !writable {
		flags = syscall.EV_DELETE
	}
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_WRITE,
		Flags:  uint16(flags),
	}
	if _, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	p.writeWait[fd] = writable
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	delete(p.writeWait, fd)
	rev := syscall.Kevent_t{Ident: uint64(fd), Filter: syscall.EVFILT_READ, Flags: syscall.EV_DELETE}
	syscall.Kevent(p.kqfd, []syscall.Kevent_t{rev}, nil, nil)
	wev := syscall.Kevent_t{Ident: uint64(fd), Filter: syscall.EVFILT_WRITE, Flags: syscall.EV_DELETE}
	syscall.Kevent(p.kqfd, []syscall.Kevent_t{wev}, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMillis int) ([]Event, error) {
	var ts *syscall.Timespec
	if timeoutMillis >= 0 {
		ts = &syscall.Timespec{
			Sec:  int64(timeoutMillis / 1000),
			Nsec: int64((timeoutMillis % 1000) * 1000000),
		}
	}

	n, err := syscall.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == syscall.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		ev, ok := byFd[fd]
		if !ok {
			ev = &Event{Fd: fd}
			byFd[fd] = ev
			order = append(order, fd)
		}
		switch e.Filter {
		case syscall.EVFILT_READ:
			ev.Readable = true
		case syscall.EVFILT_WRITE:
			ev.Writable = true
		}
		if e.Flags&syscall.EV_EOF != 0 {
			ev.Readable = true
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFd[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return syscall.Close(p.kqfd)
}

func setNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
