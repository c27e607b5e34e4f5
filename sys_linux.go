//go:build linux
// +build linux

package serial

import (
	"time"

	"golang.org/x/sys/unix"
)

// All raw operations on the tty descriptor live in this file.

// ignoringEINTR retries fn until it stops failing with EINTR. The Go runtime
// preempts goroutines with signals, so any slow syscall can see it.
func ignoringEINTR[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if err != unix.EINTR {
			return v, err
		}
	}
}

func ignoringEINTR0(fn func() error) error {
	_, err := ignoringEINTR(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sysOpen(path string) (int, error) {
	return ignoringEINTR(func() (int, error) {
		return unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	})
}

func sysClose(fd int) error { return unix.Close(fd) }

func sysSetExclusive(fd int) error {
	return ignoringEINTR0(func() error { return unix.IoctlSetInt(fd, unix.TIOCEXCL, 0) })
}

func sysSetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

func sysGetTermios(fd int) (*unix.Termios, error) {
	return ignoringEINTR(func() (*unix.Termios, error) {
		return unix.IoctlGetTermios(fd, unix.TCGETS)
	})
}

func sysSetTermios(fd int, t *unix.Termios) error {
	return ignoringEINTR0(func() error { return unix.IoctlSetTermios(fd, unix.TCSETS, t) })
}

// rawRead is the read(2) behind sysRead; tests replace it.
var rawRead = unix.Read

func sysRead(fd int, p []byte) (int, error) {
	return ignoringEINTR(func() (int, error) { return rawRead(fd, p) })
}

func sysWrite(fd int, p []byte) (int, error) {
	return ignoringEINTR(func() (int, error) { return unix.Write(fd, p) })
}

// sysDrain is tcdrain(3): it returns once the output queue is transmitted.
func sysDrain(fd int) error {
	return ignoringEINTR0(func() error { return unix.IoctlSetInt(fd, unix.TCSBRK, 1) })
}

func sysInputPending(fd int) (int, error) {
	return ignoringEINTR(func() (int, error) { return unix.IoctlGetInt(fd, unix.TIOCINQ) })
}

func sysOutputPending(fd int) (int, error) {
	return ignoringEINTR(func() (int, error) { return unix.IoctlGetInt(fd, unix.TIOCOUTQ) })
}

// sysFlushQueue discards queued data; queue is TCIFLUSH, TCOFLUSH or TCIOFLUSH.
func sysFlushQueue(fd int, queue int) error {
	return ignoringEINTR0(func() error { return unix.IoctlSetInt(fd, unix.TCFLSH, queue) })
}

func sysModemBits(fd int) (int, error) {
	return ignoringEINTR(func() (int, error) { return unix.IoctlGetInt(fd, unix.TIOCMGET) })
}

func sysSetModemBit(fd int, bit int, on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	return ignoringEINTR0(func() error { return unix.IoctlSetPointerInt(fd, req, bit) })
}

func sysBreak(fd int, d time.Duration) error {
	if err := ignoringEINTR0(func() error { return unix.IoctlSetInt(fd, unix.TIOCSBRK, 0) }); err != nil {
		return err
	}
	time.Sleep(d)
	return ignoringEINTR0(func() error { return unix.IoctlSetInt(fd, unix.TIOCCBRK, 0) })
}
