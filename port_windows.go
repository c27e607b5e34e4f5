//go:build windows
// +build windows

package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Microsoft/go-winio"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const devicePrefix = `\\.\`

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Port is a COM port driven through overlapped I/O on the Go runtime's
// completion port. Reads and writes park the calling goroutine until the
// driver signals completion.
//
// A read and a write may run concurrently. Concurrent calls in the same
// direction must be serialized by the caller.
type Port struct {
	name string
	log  *zap.Logger

	// file owns the handle and is the only thing that closes it.
	file      io.ReadWriteCloser
	rdeadline *deadline
	wdeadline *deadline

	// handle is a borrowed view of the handle owned by file. It is used for
	// configuration calls only and must never be closed or read through.
	// mu is held for reading while handle is in use and for writing by Close.
	mu     sync.RWMutex
	handle windows.Handle

	closeOnce sync.Once
	closed    atomic.Bool
}

// devicePath rewrites a port name such as COM12 into the device namespace,
// which is required for ports above COM9.
func devicePath(name string) string {
	if strings.HasPrefix(name, devicePrefix) {
		return name
	}
	return devicePrefix + name
}

// Open opens cfg.Device for overlapped I/O, applies the line settings and
// read timeouts, and binds the handle to the runtime's completion port.
func Open(cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Device: cfg.Device, Op: "validate", Err: err}
	}
	cfg = cfg.withDefaults()

	path, err := windows.UTF16PtrFromString(devicePath(cfg.Device))
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Err: err}
	}
	h, err := windows.CreateFile(path,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OVERLAPPED,
		0)
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Reason: openReason(err), Err: err}
	}

	if err := setup(h, cfg); err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	// From here on the handle belongs to file.
	file, err := winio.MakeOpenFile(syscall.Handle(h))
	if err != nil {
		windows.CloseHandle(h)
		return nil, &ConfigError{Device: cfg.Device, Op: "register", Err: err}
	}
	d, ok := file.(deadliner)
	if !ok {
		file.Close()
		return nil, &ConfigError{Device: cfg.Device, Op: "register", Err: fmt.Errorf("%T has no deadlines", file)}
	}

	cfg.Logger.Debug("serial port opened",
		zap.String("device", cfg.Device),
		zap.Uintptr("handle", uintptr(h)),
		zap.Int("baud", cfg.Mode.BaudRate),
		zap.Stringer("flow", cfg.FlowControl))

	return &Port{
		name:      cfg.Device,
		log:       cfg.Logger,
		file:      file,
		rdeadline: newDeadline(d.SetReadDeadline),
		wdeadline: newDeadline(d.SetWriteDeadline),
		handle:    h,
	}, nil
}

func setup(h windows.Handle, cfg Config) error {
	var dcb windows.DCB
	if err := windows.GetCommState(h, &dcb); err != nil {
		return &ConfigError{Device: cfg.Device, Op: "GetCommState", Err: err}
	}
	if err := applyDCB(&dcb, cfg); err != nil {
		return &ConfigError{Device: cfg.Device, Op: "mode", Err: err}
	}
	if err := windows.SetCommState(h, &dcb); err != nil {
		return &ConfigError{Device: cfg.Device, Op: "SetCommState", Err: err}
	}

	timeouts := readTimeouts()
	if err := windows.SetCommTimeouts(h, &timeouts); err != nil {
		return &TimeoutOverrideError{Device: cfg.Device, Err: err}
	}
	return nil
}

func openReason(err error) error {
	switch err {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return ErrPortNotFound
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_SHARING_VIOLATION:
		// COM ports are exclusive; a port held elsewhere reports access denied.
		return ErrPortBusy
	}
	return nil
}

// Name returns the port name the port was opened with.
func (p *Port) Name() string { return p.name }

// Read reads up to len(b) bytes, waiting until at least one is available.
// It returns io.EOF once the driver reports the line closed.
func (p *Port) Read(b []byte) (int, error) {
	return p.ReadContext(context.Background(), b)
}

// ReadContext is like Read but gives up when ctx is done. An abandoned read
// leaves the port usable; bytes the driver had already delivered to the
// cancelled request are lost.
func (p *Port) ReadContext(ctx context.Context, b []byte) (int, error) {
	if p.closed.Load() {
		return 0, p.pathErr("read", ErrClosed)
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := interruptible(ctx, p.rdeadline, func() (int, error) {
		return p.file.Read(b)
	})
	if err != nil {
		return n, p.transferErr("read", err)
	}
	return n, nil
}

// Write writes len(b) bytes. Written bytes may still be queued; see Flush.
func (p *Port) Write(b []byte) (int, error) {
	return p.WriteContext(context.Background(), b)
}

// WriteContext is like Write but gives up when ctx is done, reporting how
// many bytes were accepted before that.
func (p *Port) WriteContext(ctx context.Context, b []byte) (int, error) {
	if p.closed.Load() {
		return 0, p.pathErr("write", ErrClosed)
	}
	var written int
	for written < len(b) {
		n, err := interruptible(ctx, p.wdeadline, func() (int, error) {
			return p.file.Write(b[written:])
		})
		written += n
		if err != nil {
			return written, p.transferErr("write", err)
		}
	}
	return written, nil
}

// Flush waits until every byte written so far has been transmitted.
func (p *Port) Flush() error {
	return p.FlushContext(context.Background())
}

// FlushContext is like Flush. ctx is checked before the drain starts; the
// drain itself cannot be interrupted.
func (p *Port) FlushContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.control("flush", func(h windows.Handle) error {
		return windows.FlushFileBuffers(h)
	})
}

// Drain is an alias for Flush.
func (p *Port) Drain() error { return p.Flush() }

// SetReadDeadline sets the deadline for pending and future reads.
func (p *Port) SetReadDeadline(t time.Time) error { return p.rdeadline.Set(t) }

// SetWriteDeadline sets the deadline for pending and future writes.
func (p *Port) SetWriteDeadline(t time.Time) error { return p.wdeadline.Set(t) }

// SetMode changes the line settings on an open port.
func (p *Port) SetMode(mode *bugst.Mode) error {
	if mode == nil {
		return p.pathErr("setmode", errNilMode)
	}
	return p.control("setmode", func(h windows.Handle) error {
		var dcb windows.DCB
		if err := windows.GetCommState(h, &dcb); err != nil {
			return err
		}
		cfg := Config{Device: p.name, Mode: *mode}.withDefaults()
		cfg.FlowControl = flowControlOf(&dcb)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := applyDCB(&dcb, cfg); err != nil {
			return err
		}
		return windows.SetCommState(h, &dcb)
	})
}

// SetDTR drives the Data Terminal Ready line.
func (p *Port) SetDTR(on bool) error {
	fn := uint32(clrDTR)
	if on {
		fn = setDTR
	}
	return p.escape("setdtr", fn)
}

// SetRTS drives the Request To Send line.
func (p *Port) SetRTS(on bool) error {
	fn := uint32(clrRTS)
	if on {
		fn = setRTS
	}
	return p.escape("setrts", fn)
}

func (p *Port) escape(op string, fn uint32) error {
	return p.control(op, func(h windows.Handle) error {
		return windows.EscapeCommFunction(h, fn)
	})
}

// GetModemStatusBits reads the CTS, DSR, RI and DCD input lines.
func (p *Port) GetModemStatusBits() (*bugst.ModemStatusBits, error) {
	var bits uint32
	err := p.control("modembits", func(h windows.Handle) error {
		return windows.GetCommModemStatus(h, &bits)
	})
	if err != nil {
		return nil, err
	}
	return &bugst.ModemStatusBits{
		CTS: bits&msCTSOn != 0,
		DSR: bits&msDSROn != 0,
		RI:  bits&msRingOn != 0,
		DCD: bits&msRLSDOn != 0,
	}, nil
}

func (p *Port) comStat(op string) (windows.ComStat, error) {
	var (
		errs uint32
		stat windows.ComStat
	)
	err := p.control(op, func(h windows.Handle) error {
		return windows.ClearCommError(h, &errs, &stat)
	})
	return stat, err
}

// InputPending returns the number of received bytes not yet read.
func (p *Port) InputPending() (int, error) {
	stat, err := p.comStat("inq")
	return int(stat.CBInQue), err
}

// OutputPending returns the number of written bytes not yet transmitted.
func (p *Port) OutputPending() (int, error) {
	stat, err := p.comStat("outq")
	return int(stat.CBOutQue), err
}

// ResetInputBuffer discards received bytes that have not been read.
func (p *Port) ResetInputBuffer() error {
	return p.control("flushin", func(h windows.Handle) error {
		return windows.PurgeComm(h, purgeRXAbort|purgeRXClear)
	})
}

// ResetOutputBuffer discards written bytes that have not been transmitted.
func (p *Port) ResetOutputBuffer() error {
	return p.control("flushout", func(h windows.Handle) error {
		return windows.PurgeComm(h, purgeTXAbort|purgeTXClear)
	})
}

// Break holds the line in the break condition for d.
func (p *Port) Break(d time.Duration) error {
	if err := p.escape("break", setBreak); err != nil {
		return err
	}
	time.Sleep(d)
	return p.escape("break", clrBreak)
}

// Close closes the port and aborts pending reads and writes. It waits for
// configuration calls already in progress. Calling Close more than once is a
// no-op.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
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

// control runs fn on the borrowed configuration handle.
func (p *Port) control(op string, fn func(h windows.Handle) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return p.pathErr(op, ErrClosed)
	}
	if err := fn(p.handle); err != nil {
		return p.pathErr(op, err)
	}
	return nil
}

func (p *Port) transferErr(op string, err error) error {
	switch {
	case err == io.EOF:
		return io.EOF
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, winio.ErrFileClosed):
		return p.pathErr(op, ErrClosed)
	}
	return p.pathErr(op, err)
}

func (p *Port) pathErr(op string, err error) error {
	return &fs.PathError{Op: op, Path: p.name, Err: err}
}
