package serial

import (
	"errors"
	"fmt"
	"runtime"

	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// FlowControl selects the flow control discipline used on the line.
type FlowControl int

const (
	NoFlowControl       FlowControl = iota
	HardwareFlowControl             // RTS/CTS
	SoftwareFlowControl             // XON/XOFF
)

func (f FlowControl) String() string {
	switch f {
	case NoFlowControl:
		return "none"
	case HardwareFlowControl:
		return "hardware"
	case SoftwareFlowControl:
		return "software"
	default:
		return fmt.Sprintf("FlowControl(%d)", int(f))
	}
}

// Default line settings applied to zero fields of Config.Mode.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	// Device is a filesystem path on Linux (e.g. /dev/ttyUSB0) or a port
	// name on Windows (e.g. COM3).
	Device string

	// Mode carries baud rate, data bits, parity, stop bits and the optional
	// initial RTS/DTR levels. Zero BaudRate and DataBits take the defaults.
	Mode bugst.Mode

	FlowControl FlowControl

	// Logger receives open/close diagnostics. Nil disables logging.
	Logger *zap.Logger
}

var (
	errNoDevice = errors.New("no device")
	errNilMode  = errors.New("nil mode")
)

// Validate reports whether the configuration can be applied to a port.
func (c Config) Validate() error {
	if c.Device == "" {
		return errNoDevice
	}
	m := c.Mode
	if m.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate %d", m.BaudRate)
	}
	if m.DataBits != 0 && (m.DataBits < 5 || m.DataBits > 8) {
		return fmt.Errorf("invalid data bits %d", m.DataBits)
	}
	switch m.Parity {
	case bugst.NoParity, bugst.OddParity, bugst.EvenParity, bugst.MarkParity, bugst.SpaceParity:
	default:
		return fmt.Errorf("invalid parity %d", m.Parity)
	}
	switch m.StopBits {
	case bugst.OneStopBit, bugst.TwoStopBits:
	case bugst.OnePointFiveStopBits:
		// termios has no encoding for 1.5 stop bits.
		if runtime.GOOS == "linux" {
			return errors.New("1.5 stop bits are not supported on linux")
		}
	default:
		return fmt.Errorf("invalid stop bits %d", m.StopBits)
	}
	switch c.FlowControl {
	case NoFlowControl, HardwareFlowControl, SoftwareFlowControl:
	default:
		return fmt.Errorf("invalid flow control %v", c.FlowControl)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Mode.BaudRate == 0 {
		c.Mode.BaudRate = DefaultBaudRate
	}
	if c.Mode.DataBits == 0 {
		c.Mode.DataBits = DefaultDataBits
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
