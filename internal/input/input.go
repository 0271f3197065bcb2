// Package input reads raw key events from kernel evdev nodes.
//
// Each keyboard gets its own reader goroutine blocked in a read on the
// device. Shutdown revokes every open device, which wakes all readers at
// once. Events from all devices fan in to a single channel; within one
// device they keep kernel order.
package input

import (
	"errors"
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

var (
	// ErrPermissionDenied means a device node exists but cannot be opened.
	ErrPermissionDenied = errors.New("input: permission denied")
	// ErrDeviceDisconnected is carried by the event emitted when a device
	// goes away.
	ErrDeviceDisconnected = errors.New("input: device disconnected")
)

// Event types and key values from linux/input-event-codes.h.
const (
	EvSyn = uint16(evdev.EV_SYN)
	EvKey = uint16(evdev.EV_KEY)

	KeyRelease = 0
	KeyPress   = 1
	KeyRepeat  = 2
)

// Event is one key event, or a disconnect notice when Err is set.
type Event struct {
	Device string
	Time   time.Time
	Type   uint16
	Code   uint16
	Value  int32
	// Err is non-nil (wrapping ErrDeviceDisconnected) when Device went away.
	// The other fields are zero in that case.
	Err error
}

// Disconnected reports whether ev announces a device loss.
func (ev Event) Disconnected() bool { return ev.Err != nil }

func (ev Event) String() string {
	if ev.Err != nil {
		return fmt.Sprintf("%s: %v", ev.Device, ev.Err)
	}
	return fmt.Sprintf("%s: type=%d code=%d value=%d", ev.Device, ev.Type, ev.Code, ev.Value)
}

func fromEvdev(device string, e *evdev.InputEvent) Event {
	sec, nsec := e.Time.Unix()
	return Event{
		Device: device,
		Time:   time.Unix(sec, nsec),
		Type:   uint16(e.Type),
		Code:   uint16(e.Code),
		Value:  e.Value,
	}
}

// Node is an open evdev device. *evdev.InputDevice satisfies it.
type Node interface {
	Name() (string, error)
	CapableEvents(t evdev.EvType) []evdev.EvCode
	ReadOne() (*evdev.InputEvent, error)
	// Revoke makes pending and future reads fail, unblocking the reader.
	Revoke() error
	Close() error
}

// OpenNode opens path as an evdev device.
func OpenNode(path string) (Node, error) {
	d, err := evdev.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}
