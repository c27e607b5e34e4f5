package serial

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero value with device", Config{Device: "/dev/ttyS0"}, false},
		{"missing device", Config{}, true},
		{"negative baud", Config{Device: "d", Mode: bugst.Mode{BaudRate: -1}}, true},
		{"four data bits", Config{Device: "d", Mode: bugst.Mode{DataBits: 4}}, true},
		{"seven data bits", Config{Device: "d", Mode: bugst.Mode{DataBits: 7}}, false},
		{"unknown parity", Config{Device: "d", Mode: bugst.Mode{Parity: bugst.Parity(42)}}, true},
		{"unknown stop bits", Config{Device: "d", Mode: bugst.Mode{StopBits: bugst.StopBits(9)}}, true},
		{"unknown flow control", Config{Device: "d", FlowControl: FlowControl(7)}, true},
		{"software flow control", Config{Device: "d", FlowControl: SoftwareFlowControl}, false},
		{"one and a half stop bits", Config{Device: "d", Mode: bugst.Mode{StopBits: bugst.OnePointFiveStopBits}}, runtime.GOOS == "linux"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Device: "d"}.withDefaults()
	require.Equal(t, DefaultBaudRate, cfg.Mode.BaudRate)
	require.Equal(t, DefaultDataBits, cfg.Mode.DataBits)
	require.Equal(t, bugst.NoParity, cfg.Mode.Parity)
	require.Equal(t, bugst.OneStopBit, cfg.Mode.StopBits)
	require.NotNil(t, cfg.Logger)

	cfg = Config{Device: "d", Mode: bugst.Mode{BaudRate: 57600, DataBits: 7}}.withDefaults()
	require.Equal(t, 57600, cfg.Mode.BaudRate)
	require.Equal(t, 7, cfg.Mode.DataBits)
}

func TestFlowControl_String(t *testing.T) {
	require.Equal(t, "none", NoFlowControl.String())
	require.Equal(t, "hardware", HardwareFlowControl.String())
	require.Equal(t, "software", SoftwareFlowControl.String())
	require.Equal(t, "FlowControl(9)", FlowControl(9).String())
}
