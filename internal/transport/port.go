package transport

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"go.bug.st/serial"
)

// StdioPort is the port name that reads claims from stdin and writes replies to stdout.
const StdioPort = "-"

// DefaultBaudRate matches the badge reader firmware.
const DefaultBaudRate = 9600

// SettleDelay is how long to wait after opening a device. Most Arduino boards
// reset when the port opens and drop anything sent before they boot.
var SettleDelay = 2 * time.Second

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// OpenPort opens the named serial device at baud, 8N1.
func OpenPort(name string, baud int) (io.ReadWriteCloser, error) {
	if name == StdioPort {
		return stdio{Reader: os.Stdin, Writer: os.Stdout}, nil
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		if ports, listErr := serial.GetPortsList(); listErr == nil {
			logger.Error("Failed to open serial port",
				logger.LoggerOptions{Key: "port", Data: name},
				logger.LoggerOptions{Key: "available", Data: ports},
			)
		}
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	logger.Info("Serial port opened",
		logger.LoggerOptions{Key: "port", Data: name},
		logger.LoggerOptions{Key: "baud", Data: baud},
	)
	time.Sleep(SettleDelay)
	return port, nil
}

// Ports lists the serial devices present on this machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
