package ble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vitaminmoo/blexfer/internal/config"
	"github.com/vitaminmoo/blexfer/internal/util"

	"tinygo.org/x/bluetooth"
)

var (
	ErrWriteInFlight = errors.New("a write is already in flight")
	ErrNoNotifyChar  = errors.New("no notify characteristic configured")
)

// DeviceLink is a connected peripheral with one write characteristic and an
// optional notify characteristic. It implements transfer.GattLink.
type DeviceLink struct {
	device     bluetooth.Device
	writeChar  *bluetooth.DeviceCharacteristic
	notifyChar *bluetooth.DeviceCharacteristic

	mu      sync.Mutex
	writing bool
}

// Write issues a write without response on its own goroutine and reports the
// result through done.
func (l *DeviceLink) Write(packet []byte, done func(err error)) error {
	l.mu.Lock()
	if l.writing {
		l.mu.Unlock()
		return ErrWriteInFlight
	}
	l.writing = true
	l.mu.Unlock()

	buf := append([]byte(nil), packet...)
	go func() {
		n, err := l.writeChar.WriteWithoutResponse(buf)
		if err == nil && n != len(buf) {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(buf))
		}
		if err == nil && config.Verbose {
			config.Debugf("Wrote %d bytes", n)
			util.HexDump(config.Log.Out, buf)
		}

		l.mu.Lock()
		l.writing = false
		l.mu.Unlock()
		done(err)
	}()
	return nil
}

// EnableNotifications subscribes handler to the notify characteristic.
// A nil handler unsubscribes.
func (l *DeviceLink) EnableNotifications(handler func(data []byte)) error {
	if l.notifyChar == nil {
		if handler == nil {
			return nil
		}
		return ErrNoNotifyChar
	}
	if handler == nil {
		return l.notifyChar.EnableNotifications(nil)
	}
	return l.notifyChar.EnableNotifications(func(buf []byte) {
		config.Debugf("Notification received: %d bytes", len(buf))
		handler(buf)
	})
}

// MTU returns the negotiated MTU, or 0 if the platform cannot report it.
func (l *DeviceLink) MTU() int {
	mtu, err := l.writeChar.GetMTU()
	if err != nil {
		config.Debugf("MTU unavailable: %v", err)
		return 0
	}
	return int(mtu)
}

// Disconnect closes the connection.
func (l *DeviceLink) Disconnect() error {
	return l.device.Disconnect()
}
