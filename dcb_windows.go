//go:build windows
// +build windows

package serial

import (
	"fmt"
	"unsafe"

	bugst "go.bug.st/serial"
	"golang.org/x/sys/windows"
)

// DCB.Flags bits.
const (
	dcbBinary              = 0x00000001
	dcbParity              = 0x00000002
	dcbOutxCtsFlow         = 0x00000004
	dcbOutxDsrFlow         = 0x00000008
	dcbDtrControlMask      = 0x00000030
	dcbDtrControlEnable    = 0x00000010
	dcbDsrSensitivity      = 0x00000040
	dcbTXContinueOnXoff    = 0x00000080
	dcbOutX                = 0x00000100
	dcbInX                 = 0x00000200
	dcbErrorChar           = 0x00000400
	dcbNull                = 0x00000800
	dcbRtsControlMask      = 0x00003000
	dcbRtsControlEnable    = 0x00001000
	dcbRtsControlHandshake = 0x00002000
	dcbAbortOnError        = 0x00004000
)

const (
	noParity    = 0
	oddParity   = 1
	evenParity  = 2
	markParity  = 3
	spaceParity = 4

	oneStopBit   = 0
	one5StopBits = 1
	twoStopBits  = 2
)

// EscapeCommFunction codes.
const (
	setRTS   = 3
	clrRTS   = 4
	setDTR   = 5
	clrDTR   = 6
	setBreak = 8
	clrBreak = 9
)

// GetCommModemStatus bits.
const (
	msCTSOn  = 0x0010
	msDSROn  = 0x0020
	msRingOn = 0x0040
	msRLSDOn = 0x0080
)

// PurgeComm flags.
const (
	purgeTXAbort = 0x0001
	purgeRXAbort = 0x0002
	purgeTXClear = 0x0004
	purgeRXClear = 0x0008
)

const (
	xonChar  = 0x11
	xoffChar = 0x13
)

var dcbSize = unsafe.Sizeof(windows.DCB{})

// applyDCB writes the line settings of cfg into dcb.
func applyDCB(dcb *windows.DCB, cfg Config) error {
	m := cfg.Mode
	if m.BaudRate <= 0 {
		return fmt.Errorf("unsupported baud rate %d", m.BaudRate)
	}
	if m.DataBits < 5 || m.DataBits > 8 {
		return fmt.Errorf("unsupported data bits %d", m.DataBits)
	}

	dcb.DCBlength = uint32(dcbSize)
	dcb.BaudRate = uint32(m.BaudRate)
	dcb.ByteSize = uint8(m.DataBits)

	dcb.Flags &^= dcbParity | dcbOutxCtsFlow | dcbOutxDsrFlow | dcbDtrControlMask |
		dcbDsrSensitivity | dcbOutX | dcbInX | dcbErrorChar | dcbNull | dcbRtsControlMask | dcbAbortOnError
	dcb.Flags |= dcbBinary | dcbTXContinueOnXoff

	switch m.Parity {
	case bugst.NoParity:
		dcb.Parity = noParity
	case bugst.OddParity:
		dcb.Parity = oddParity
	case bugst.EvenParity:
		dcb.Parity = evenParity
	case bugst.MarkParity:
		dcb.Parity = markParity
	case bugst.SpaceParity:
		dcb.Parity = spaceParity
	default:
		return fmt.Errorf("unsupported parity %d", m.Parity)
	}
	if dcb.Parity != noParity {
		dcb.Flags |= dcbParity
	}

	switch m.StopBits {
	case bugst.OneStopBit:
		dcb.StopBits = oneStopBit
	case bugst.OnePointFiveStopBits:
		dcb.StopBits = one5StopBits
	case bugst.TwoStopBits:
		dcb.StopBits = twoStopBits
	default:
		return fmt.Errorf("unsupported stop bits %d", m.StopBits)
	}

	dtr, rts := true, true
	if bits := m.InitialStatusBits; bits != nil {
		dtr, rts = bits.DTR, bits.RTS
	}
	if dtr {
		dcb.Flags |= dcbDtrControlEnable
	}

	switch cfg.FlowControl {
	case NoFlowControl:
		if rts {
			dcb.Flags |= dcbRtsControlEnable
		}
	case HardwareFlowControl:
		dcb.Flags |= dcbOutxCtsFlow | dcbRtsControlHandshake
	case SoftwareFlowControl:
		dcb.Flags |= dcbOutX | dcbInX
		dcb.XonChar = xonChar
		dcb.XoffChar = xoffChar
		if rts {
			dcb.Flags |= dcbRtsControlEnable
		}
	default:
		return fmt.Errorf("unsupported flow control %v", cfg.FlowControl)
	}
	return nil
}

// flowControlOf recovers the flow control discipline from a DCB.
func flowControlOf(dcb *windows.DCB) FlowControl {
	switch {
	case dcb.Flags&dcbOutxCtsFlow != 0:
		return HardwareFlowControl
	case dcb.Flags&(dcbOutX|dcbInX) != 0:
		return SoftwareFlowControl
	}
	return NoFlowControl
}

// readTimeouts makes ReadFile wait for the first byte forever and then
// return once the line has been quiet for one millisecond. Without it the
// driver may complete reads with zero bytes, which would look like EOF.
func readTimeouts() windows.CommTimeouts {
	return windows.CommTimeouts{
		ReadIntervalTimeout:         1,
		ReadTotalTimeoutMultiplier:  0,
		ReadTotalTimeoutConstant:    0,
		WriteTotalTimeoutMultiplier: 0,
		WriteTotalTimeoutConstant:   0,
	}
}
