//go:build linux
// +build linux

package serial

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	bugst "go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Port is a serial line registered with the Go runtime poller. Reads, writes
// and flushes park the calling goroutine until the descriptor is ready
// instead of blocking an OS thread.
//
// A read and a write may run concurrently. Concurrent calls in the same
// direction must be serialized by the caller.
type Port struct {
	name string
	log  *zap.Logger

	// file owns the descriptor and is the only thing that closes it.
	file *os.File
	rc   syscall.RawConn

	rdeadline *deadline
	wdeadline *deadline

	closeOnce sync.Once
	closed    atomic.Bool
}

// Open opens cfg.Device, configures it for raw non-blocking use, and
// registers it with the runtime poller.
func Open(cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Device: cfg.Device, Op: "validate", Err: err}
	}
	cfg = cfg.withDefaults()

	// Open non-blocking so a modem line without carrier does not hang us.
	fd, err := sysOpen(cfg.Device)
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Reason: openReason(err), Err: err}
	}

	if err := setup(fd, cfg); err != nil {
		sysClose(fd)
		return nil, err
	}

	file := os.NewFile(uintptr(fd), cfg.Device)
	rc, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, &ConfigError{Device: cfg.Device, Op: "register", Err: err}
	}

	cfg.Logger.Debug("serial port opened",
		zap.String("device", cfg.Device),
		zap.Int("fd", fd),
		zap.Int("baud", cfg.Mode.BaudRate),
		zap.Stringer("flow", cfg.FlowControl))

	return &Port{
		name: cfg.Device,
		log:  cfg.Logger,
		file: file,
		rc:   rc,

		rdeadline: newDeadline(file.SetReadDeadline),
		wdeadline: newDeadline(file.SetWriteDeadline),
	}, nil
}

// setup takes exclusive use of the line, applies settings on the blocking
// descriptor, then switches it to non-blocking mode.
func setup(fd int, cfg Config) error {
	fail := func(op string, err error) error {
		return &ConfigError{Device: cfg.Device, Op: op, Err: err}
	}

	if err := sysSetExclusive(fd); err != nil {
		return fail("exclusive", err)
	}
	if err := sysSetNonblock(fd, false); err != nil {
		return fail("setnonblock", err)
	}

	t, err := sysGetTermios(fd)
	if err != nil {
		return fail("tcgetattr", err)
	}
	makeRaw(t)
	if err := applyMode(t, cfg); err != nil {
		return fail("mode", err)
	}
	setBlockingMinimum(t)
	if err := sysSetTermios(fd, t); err != nil {
		return fail("tcsetattr", err)
	}

	if err := sysSetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}

	if bits := cfg.Mode.InitialStatusBits; bits != nil {
		if err := sysSetModemBit(fd, unix.TIOCM_RTS, bits.RTS); err != nil {
			return fail("rts", err)
		}
		if err := sysSetModemBit(fd, unix.TIOCM_DTR, bits.DTR); err != nil {
			return fail("dtr", err)
		}
	}
	return nil
}

func openReason(err error) error {
	switch err {
	case unix.ENOENT, unix.ENXIO, unix.ENODEV:
		return ErrPortNotFound
	case unix.EBUSY:
		return ErrPortBusy
	case unix.EACCES, unix.EPERM:
		return ErrPermissionDenied
	}
	return nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string { return p.name }

// Read reads up to len(b) bytes, waiting until at least one is available.
// It returns io.EOF once the other end of the line has hung up.
func (p *Port) Read(b []byte) (int, error) {
	return p.ReadContext(context.Background(), b)
}

// ReadContext is like Read but gives up when ctx is done. An abandoned read
// leaves the port usable.
func (p *Port) ReadContext(ctx context.Context, b []byte) (int, error) {
	if p.closed.Load() {
		return 0, p.pathErr("read", ErrClosed)
	}
	if len(b) == 0 {
		return 0, nil
	}

	var (
		n     int
		opErr error
	)
	_, err := interruptible(ctx, p.rdeadline, func() (int, error) {
		err := p.rc.Read(func(fd uintptr) bool {
			n, opErr = sysRead(int(fd), b)
			// Spurious wake-up: stay registered and wait for the next one.
			return opErr != unix.EAGAIN
		})
		return n, err
	})
	if err != nil {
		return 0, p.pollErr("read", err)
	}

	switch {
	case opErr == unix.EIO:
		// A tty whose other side has hung up fails reads with EIO.
		return 0, io.EOF
	case opErr != nil:
		return 0, p.pathErr("read", opErr)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// Write writes len(b) bytes, parking the goroutine whenever the driver's
// transmit buffer is full. Written bytes may still be queued; see Flush.
func (p *Port) Write(b []byte) (int, error) {
	return p.WriteContext(context.Background(), b)
}

// WriteContext is like Write but gives up when ctx is done, reporting how
// many bytes were accepted before that.
func (p *Port) WriteContext(ctx context.Context, b []byte) (int, error) {
	if len(b) == 0 {
		return p.writeOnce(ctx, b)
	}
	var written int
	for written < len(b) {
		n, err := p.writeOnce(ctx, b[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (p *Port) writeOnce(ctx context.Context, b []byte) (int, error) {
	if p.closed.Load() {
		return 0, p.pathErr("write", ErrClosed)
	}
	if len(b) == 0 {
		return 0, nil
	}

	var (
		n     int
		opErr error
	)
	_, err := interruptible(ctx, p.wdeadline, func() (int, error) {
		err := p.rc.Write(func(fd uintptr) bool {
			n, opErr = sysWrite(int(fd), b)
			return opErr != unix.EAGAIN
		})
		return n, err
	})
	if err != nil {
		return 0, p.pollErr("write", err)
	}
	if opErr != nil {
		return 0, p.pathErr("write", opErr)
	}
	return n, nil
}

// Flush waits until every byte written so far has left the transmit queue.
// Unlike write readiness, which only means there is buffer space, Flush
// returns once OutputPending would report zero.
func (p *Port) Flush() error {
	return p.FlushContext(context.Background())
}

// FlushContext is like Flush. ctx is only honoured while waiting for write
// readiness; once the drain has started it runs to completion.
func (p *Port) FlushContext(ctx context.Context) error {
	if p.closed.Load() {
		return p.pathErr("flush", ErrClosed)
	}

	var opErr error
	_, err := interruptible(ctx, p.wdeadline, func() (int, error) {
		return 0, p.rc.Write(func(fd uintptr) bool {
			opErr = sysDrain(int(fd))
			return opErr != unix.EAGAIN
		})
	})
	if err != nil {
		return p.pollErr("flush", err)
	}
	if opErr != nil {
		return p.pathErr("flush", opErr)
	}
	return nil
}

// Drain is an alias for Flush.
func (p *Port) Drain() error { return p.Flush() }

// SetReadDeadline sets the deadline for pending and future reads.
func (p *Port) SetReadDeadline(t time.Time) error { return p.rdeadline.Set(t) }

// SetWriteDeadline sets the deadline for pending and future writes and flushes.
func (p *Port) SetWriteDeadline(t time.Time) error { return p.wdeadline.Set(t) }

// SetMode changes the line settings on an open port.
func (p *Port) SetMode(mode *bugst.Mode) error {
	if mode == nil {
		return p.pathErr("setmode", errNilMode)
	}
	return p.control("setmode", func(fd int) error {
		t, err := sysGetTermios(fd)
		if err != nil {
			return err
		}
		cfg := Config{Device: p.name, Mode: *mode}.withDefaults()
		cfg.FlowControl = flowControlOf(t)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := applyMode(t, cfg); err != nil {
			return err
		}
		return sysSetTermios(fd, t)
	})
}

func flowControlOf(t *unix.Termios) FlowControl {
	switch {
	case t.Cflag&unix.CRTSCTS != 0:
		return HardwareFlowControl
	case t.Iflag&unix.IXON != 0:
		return SoftwareFlowControl
	}
	return NoFlowControl
}

// SetDTR drives the Data Terminal Ready line.
func (p *Port) SetDTR(on bool) error {
	return p.control("setdtr", func(fd int) error { return sysSetModemBit(fd, unix.TIOCM_DTR, on) })
}

// SetRTS drives the Request To Send line.
func (p *Port) SetRTS(on bool) error {
	return p.control("setrts", func(fd int) error { return sysSetModemBit(fd, unix.TIOCM_RTS, on) })
}

// GetModemStatusBits reads the CTS, DSR, RI and DCD input lines.
func (p *Port) GetModemStatusBits() (*bugst.ModemStatusBits, error) {
	var bits int
	err := p.control("modembits", func(fd int) (err error) {
		bits, err = sysModemBits(fd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &bugst.ModemStatusBits{
		CTS: bits&unix.TIOCM_CTS != 0,
		DSR: bits&unix.TIOCM_DSR != 0,
		RI:  bits&unix.TIOCM_RI != 0,
		DCD: bits&unix.TIOCM_CD != 0,
	}, nil
}

// InputPending returns the number of received bytes not yet read.
func (p *Port) InputPending() (int, error) {
	var n int
	err := p.control("inq", func(fd int) (err error) {
		n, err = sysInputPending(fd)
		return err
	})
	return n, err
}

// OutputPending returns the number of written bytes not yet transmitted.
func (p *Port) OutputPending() (int, error) {
	var n int
	err := p.control("outq", func(fd int) (err error) {
		n, err = sysOutputPending(fd)
		return err
	})
	return n, err
}

// ResetInputBuffer discards received bytes that have not been read.
func (p *Port) ResetInputBuffer() error {
	return p.control("flushin", func(fd int) error { return sysFlushQueue(fd, unix.TCIFLUSH) })
}

// ResetOutputBuffer discards written bytes that have not been transmitted.
func (p *Port) ResetOutputBuffer() error {
	return p.control("flushout", func(fd int) error { return sysFlushQueue(fd, unix.TCOFLUSH) })
}

// Break holds the line in the break condition for d.
func (p *Port) Break(d time.Duration) error {
	return p.control("break", func(fd int) error { return sysBreak(fd, d) })
}

// Close closes the port and wakes any goroutine blocked on it. Calling
// Close more than once is a no-op.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.file.Close()
		if err != nil {
			p.log.Warn("serial port close failed", zap.String("device", p.name), zap.Error(err))
			return
		}
		p.log.Debug("serial port closed", zap.String("device", p.name))
	})
	return err
}

// control runs fn against the descriptor without waiting for readiness.
func (p *Port) control(op string, fn func(fd int) error) error {
	if p.closed.Load() {
		return p.pathErr(op, ErrClosed)
	}
	var opErr error
	if err := p.rc.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return p.pollErr(op, err)
	}
	if opErr != nil {
		return p.pathErr(op, opErr)
	}
	return nil
}

// pollErr translates errors from the runtime poller. Context errors and
// deadline expiry pass through so callers can test for them.
func (p *Port) pollErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case p.closed.Load(), errors.Is(err, os.ErrClosed):
		// A pending call woken by Close sees the poller's own closing error.
		return p.pathErr(op, ErrClosed)
	}
	return p.pathErr(op, err)
}

func (p *Port) pathErr(op string, err error) error {
	return &fs.PathError{Op: op, Path: p.name, Err: err}
}
