package ble

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitaminmoo/blexfer/internal/advert"
	"github.com/vitaminmoo/blexfer/internal/bleuuid"
	"github.com/vitaminmoo/blexfer/internal/config"

	"tinygo.org/x/bluetooth"
)

var (
	ErrDeviceNotFound         = errors.New("device not found")
	ErrServiceNotFound        = errors.New("service not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
)

// Advertisement is one decoded scan result.
type Advertisement struct {
	Address string
	RSSI    int16
	Name    string
	Record  advert.ScanRecord
}

var enableOnce = sync.OnceValue(func() error {
	return bluetooth.DefaultAdapter.Enable()
})

func enable() error {
	if err := enableOnce(); err != nil {
		return fmt.Errorf("failed to enable Bluetooth: %w", err)
	}
	return nil
}

// Scan reports advertisements until timeout elapses or fn returns false.
func Scan(timeout time.Duration, fn func(adv Advertisement) bool) error {
	_, err := scan(timeout, fn)
	return err
}

func scan(timeout time.Duration, fn func(adv Advertisement) bool) (bluetooth.ScanResult, error) {
	if err := enable(); err != nil {
		return bluetooth.ScanResult{}, err
	}
	adapter := bluetooth.DefaultAdapter

	stop := time.AfterFunc(timeout, func() {
		adapter.StopScan()
	})
	defer stop.Stop()

	var last bluetooth.ScanResult
	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := Advertisement{
			Address: result.Address.String(),
			RSSI:    result.RSSI,
			Name:    result.LocalName(),
			Record:  advert.ParseScanRecord(result.Bytes()),
		}
		if adv.Name == "" {
			adv.Name = adv.Record.DeviceName
		}
		config.Debugf("Found: '%s' (%s) rssi %d", adv.Name, adv.Address, adv.RSSI)

		if !fn(adv) {
			last = result
			adapter.StopScan()
		}
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan error: %w", err)
	}
	return last, nil
}

// Target selects the peripheral and characteristics to connect to.
type Target struct {
	// Address or advertised name (case-insensitive).
	Address     string
	Service     uuid.UUID
	WriteChar   uuid.UUID
	NotifyChar  uuid.UUID // zero if notifications are not used
	ScanTimeout time.Duration
}

// Connect scans for t, connects and discovers its characteristics.
func Connect(t Target) (*DeviceLink, error) {
	config.Infof("Scanning for %s...", t.Address)

	var found bool
	result, err := scan(t.ScanTimeout, func(adv Advertisement) bool {
		if strings.EqualFold(adv.Address, t.Address) || (adv.Name != "" && strings.EqualFold(adv.Name, t.Address)) {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, t.Address)
	}

	config.Infof("Connecting to %s...", result.Address.String())
	device, err := bluetooth.DefaultAdapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	link, err := setup(device, t)
	if err != nil {
		device.Disconnect()
		return nil, err
	}
	config.Infof("Connected!")
	return link, nil
}

func setup(device bluetooth.Device, t Target) (*DeviceLink, error) {
	config.Debugf("Discovering services...")

	services, err := device.DiscoverServices([]bluetooth.UUID{bleuuid.ToBluetooth(t.Service)})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, t.Service)
	}

	wanted := []bluetooth.UUID{bleuuid.ToBluetooth(t.WriteChar)}
	if t.NotifyChar != uuid.Nil {
		wanted = append(wanted, bleuuid.ToBluetooth(t.NotifyChar))
	}
	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	link := &DeviceLink{device: device}
	for i := range chars {
		id := chars[i].UUID()
		config.Debugf("Found characteristic: %s", id.String())
		if id == wanted[0] {
			link.writeChar = &chars[i]
		}
		if len(wanted) > 1 && id == wanted[1] {
			link.notifyChar = &chars[i]
		}
	}

	if link.writeChar == nil {
		return nil, fmt.Errorf("%w: write %s", ErrCharacteristicNotFound, t.WriteChar)
	}
	if len(wanted) > 1 && link.notifyChar == nil {
		return nil, fmt.Errorf("%w: notify %s", ErrCharacteristicNotFound, t.NotifyChar)
	}
	return link, nil
}
