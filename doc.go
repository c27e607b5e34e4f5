// Package serial provides serial ports that integrate with the Go runtime's
// I/O scheduler, so that many lines can be served by goroutines without
// tying up an OS thread per blocked read.
//
// On Linux the tty is switched to raw, non-blocking mode and registered with
// the runtime network poller; reads and writes park the goroutine until the
// descriptor is ready. On Windows the COM port is opened for overlapped I/O
// and bound to the runtime's completion port through go-winio.
//
// Features:
//   - Read, Write and Flush park the goroutine instead of blocking a thread
//   - ReadContext, WriteContext and FlushContext for cancellation; a
//     cancelled call leaves the port usable
//   - A read and a write may be in flight at the same time
//   - io.EOF when the other end of the line hangs up
//   - Line settings and modem lines through go.bug.st/serial types
//   - PTY-based tests
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device: "/dev/ttyUSB0",
//	    Mode:   bugst.Mode{BaudRate: 115200},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	buf := make([]byte, 256)
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	n, err := port.ReadContext(ctx, buf)
//	if err != nil {
//	    log.Println("read:", err)
//	}
//
//	if _, err := port.Write(buf[:n]); err != nil {
//	    log.Println("write:", err)
//	}
//	if err := port.Flush(); err != nil {
//	    log.Println("flush:", err)
//	}
//
// Two goroutines reading (or two writing) the same Port at once is not
// supported; serialize same-direction calls yourself.
package serial
