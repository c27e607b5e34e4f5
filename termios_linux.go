//go:build linux
// +build linux

package serial

import (
	"fmt"

	bugst "go.bug.st/serial"
	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

var dataBits = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

// makeRaw clears input, output and local processing so bytes pass through
// the line discipline unchanged.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag |= unix.CREAD | unix.CLOCAL
}

// applyMode writes the line settings of cfg into t. It does not touch VMIN
// and VTIME.
func applyMode(t *unix.Termios, cfg Config) error {
	m := cfg.Mode

	baud, ok := baudRates[m.BaudRate]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", m.BaudRate)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud
	t.Ispeed = baud
	t.Ospeed = baud

	size, ok := dataBits[m.DataBits]
	if !ok {
		return fmt.Errorf("unsupported data bits %d", m.DataBits)
	}
	t.Cflag &^= unix.CSIZE
	t.Cflag |= size

	t.Cflag &^= unix.PARENB | unix.PARODD | unix.CMSPAR
	t.Iflag &^= unix.INPCK
	switch m.Parity {
	case bugst.NoParity:
	case bugst.OddParity:
		t.Cflag |= unix.PARENB | unix.PARODD
		t.Iflag |= unix.INPCK
	case bugst.EvenParity:
		t.Cflag |= unix.PARENB
		t.Iflag |= unix.INPCK
	case bugst.MarkParity:
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
		t.Iflag |= unix.INPCK
	case bugst.SpaceParity:
		t.Cflag |= unix.PARENB | unix.CMSPAR
		t.Iflag |= unix.INPCK
	default:
		return fmt.Errorf("unsupported parity %d", m.Parity)
	}

	switch m.StopBits {
	case bugst.OneStopBit:
		t.Cflag &^= unix.CSTOPB
	case bugst.TwoStopBits:
		t.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("unsupported stop bits %d", m.StopBits)
	}

	t.Cflag &^= unix.CRTSCTS
	t.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	switch cfg.FlowControl {
	case NoFlowControl:
	case HardwareFlowControl:
		t.Cflag |= unix.CRTSCTS
	case SoftwareFlowControl:
		t.Iflag |= unix.IXON | unix.IXOFF
	default:
		return fmt.Errorf("unsupported flow control %v", cfg.FlowControl)
	}
	return nil
}

// setBlockingMinimum makes a blocking read wait for at least one byte with
// no inter-byte timer. The port itself reads non-blocking, so this only
// governs anyone reading the descriptor synchronously.
func setBlockingMinimum(t *unix.Termios) {
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}
