//go:build !linux && !windows
// +build !linux,!windows

package serial

import (
	"context"
	"errors"
	"time"
)

// Port is unavailable on this platform; Open always fails.
type Port struct{}

// Open reports errors.ErrUnsupported.
func Open(cfg Config) (*Port, error) {
	return nil, &OpenError{Device: cfg.Device, Err: errors.ErrUnsupported}
}

func (p *Port) Name() string { return "" }
func (p *Port) Read(b []byte) (int, error) { return 0, ErrClosed }
func (p *Port) ReadContext(context.Context, []byte) (int, error) { return 0, ErrClosed }
func (p *Port) Write(b []byte) (int, error) { return 0, ErrClosed }
func (p *Port) WriteContext(context.Context, []byte) (int, error) { return 0, ErrClosed }
func (p *Port) Flush() error { return ErrClosed }
func (p *Port) FlushContext(context.Context) error { return ErrClosed }
func (p *Port) SetReadDeadline(time.Time) error { return ErrClosed }
func (p *Port) SetWriteDeadline(time.Time) error { return ErrClosed }
func (p *Port) Close() error { return nil }
