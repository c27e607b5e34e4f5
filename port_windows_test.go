//go:build windows
// +build windows

package serial

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

func TestDevicePath(t *testing.T) {
	require.Equal(t, `\\.\COM1`, devicePath("COM1"))
	require.Equal(t, `\\.\COM12`, devicePath("COM12"))
	require.Equal(t, `\\.\COM3`, devicePath(`\\.\COM3`))
}

func TestReadTimeouts(t *testing.T) {
	ct := readTimeouts()
	require.EqualValues(t, 1, ct.ReadIntervalTimeout)
	require.Zero(t, ct.ReadTotalTimeoutMultiplier)
	require.Zero(t, ct.ReadTotalTimeoutConstant)
	require.Zero(t, ct.WriteTotalTimeoutMultiplier)
	require.Zero(t, ct.WriteTotalTimeoutConstant)
}

func TestOpenReason(t *testing.T) {
	require.Equal(t, ErrPortNotFound, openReason(windows.ERROR_FILE_NOT_FOUND))
	require.Equal(t, ErrPortBusy, openReason(windows.ERROR_ACCESS_DENIED))
	require.Nil(t, openReason(windows.ERROR_INVALID_PARAMETER))
}

func TestApplyDCB(t *testing.T) {
	var dcb windows.DCB
	cfg := Config{Device: "COM1", Mode: bugst.Mode{
		BaudRate: 115200,
		DataBits: 7,
		Parity:   bugst.EvenParity,
		StopBits: bugst.TwoStopBits,
	}, FlowControl: HardwareFlowControl}.withDefaults()

	require.NoError(t, applyDCB(&dcb, cfg))
	require.EqualValues(t, 115200, dcb.BaudRate)
	require.EqualValues(t, 7, dcb.ByteSize)
	require.EqualValues(t, evenParity, dcb.Parity)
	require.EqualValues(t, twoStopBits, dcb.StopBits)
	require.NotZero(t, dcb.Flags&dcbBinary)
	require.NotZero(t, dcb.Flags&dcbParity)
	require.NotZero(t, dcb.Flags&dcbOutxCtsFlow)
	require.Equal(t, HardwareFlowControl, flowControlOf(&dcb))

	cfg.FlowControl = NoFlowControl
	cfg.Mode.InitialStatusBits = &bugst.ModemOutputBits{RTS: false, DTR: true}
	require.NoError(t, applyDCB(&dcb, cfg))
	require.Zero(t, dcb.Flags&dcbRtsControlMask)
	require.Equal(t, uint32(dcbDtrControlEnable), dcb.Flags&dcbDtrControlMask)
	require.Equal(t, NoFlowControl, flowControlOf(&dcb))
}

func TestOpen_MissingPort(t *testing.T) {
	_, err := Open(Config{Device: "COM250"})
	require.Error(t, err)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
}

// TestPort_Loopback needs a COM port with TX wired to RX, named by
// SERIAL_LOOPBACK_PORT.
func TestPort_Loopback(t *testing.T) {
	name := os.Getenv("SERIAL_LOOPBACK_PORT")
	if name == "" {
		t.Skip("SERIAL_LOOPBACK_PORT not set")
	}
	port, err := Open(Config{Device: name, Mode: bugst.Mode{BaudRate: 115200}})
	require.NoError(t, err)
	defer port.Close()

	_, err = port.Write([]byte("loopback"))
	require.NoError(t, err)
	require.NoError(t, port.Flush())
	n, err := port.OutputPending()
	require.NoError(t, err)
	require.Zero(t, n)

	buf := make([]byte, 8)
	got := 0
	for got < len(buf) {
		require.NoError(t, port.SetReadDeadline(time.Now().Add(time.Second)))
		n, err := port.Read(buf[got:])
		require.NoError(t, err)
		got += n
	}
	require.Equal(t, "loopback", string(buf))
}

type closeRecorder struct{ closed chan struct{} }

func (c *closeRecorder) Read([]byte) (int, error) { return 0, nil }
func (c *closeRecorder) Write([]byte) (int, error) { return 0, nil }
func (c *closeRecorder) Close() error { close(c.closed); return nil }

// fakePort builds a Port whose handle is never touched by the callers under
// test.
func fakePort() (*Port, *closeRecorder) {
	f := &closeRecorder{closed: make(chan struct{})}
	return &Port{
		name:   "COM99",
		log:    zap.NewNop(),
		file:   f,
		handle: windows.InvalidHandle,
	}, f
}

func TestPort_CloseWaitsForControl(t *testing.T) {
	p, f := fakePort()

	entered := make(chan struct{})
	release := make(chan struct{})
	controlErr := make(chan error, 1)
	go func() {
		controlErr <- p.control("test", func(windows.Handle) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	closeErr := make(chan error, 1)
	go func() { closeErr <- p.Close() }()

	select {
	case <-f.closed:
		t.Fatal("handle closed while a configuration call was using it")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-controlErr)
	require.NoError(t, <-closeErr)

	ran := false
	err := p.control("test", func(windows.Handle) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, ran)
}

func TestPort_SetModeNil(t *testing.T) {
	p, _ := fakePort()
	require.ErrorIs(t, p.SetMode(nil), errNilMode)
}
