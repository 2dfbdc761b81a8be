package transfer

// GattLink is the platform side of a connected peripheral: one characteristic
// to write packets to and, optionally, one to receive notifications from.
type GattLink interface {
	// Write starts writing one packet. A non-nil return means the write was
	// rejected before it started. Otherwise done is called exactly once, from
	// any goroutine, when the platform reports completion.
	Write(packet []byte, done func(err error)) error

	// EnableNotifications installs handler for incoming notifications.
	// A nil handler disables them.
	EnableNotifications(handler func(data []byte)) error

	// MTU returns the negotiated ATT MTU, or 0 if unknown.
	MTU() int
}
