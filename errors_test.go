package serial

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenError(t *testing.T) {
	cause := fs.ErrNotExist
	err := error(&OpenError{Device: "/dev/ttyUSB9", Reason: ErrPortNotFound, Err: cause})

	require.EqualError(t, err, "open /dev/ttyUSB9: file does not exist")
	require.ErrorIs(t, err, ErrPortNotFound)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrPortBusy)

	err = &OpenError{Device: "COM3", Err: cause}
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrPortNotFound)
}

func TestConfigError(t *testing.T) {
	cause := errors.New("inappropriate ioctl for device")
	err := error(&ConfigError{Device: "/dev/ttyS0", Op: "tcgetattr", Err: cause})

	require.EqualError(t, err, "configure /dev/ttyS0: tcgetattr: inappropriate ioctl for device")
	require.ErrorIs(t, err, cause)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "tcgetattr", cfgErr.Op)
}

func TestTimeoutOverrideError(t *testing.T) {
	cause := errors.New("the parameter is incorrect")
	err := error(&TimeoutOverrideError{Device: "COM1", Err: cause})

	require.EqualError(t, err, "set timeouts COM1: the parameter is incorrect")
	require.ErrorIs(t, err, cause)
}
