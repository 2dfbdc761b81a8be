package transfer

import "bytes"

// AckMode selects how a packet is acknowledged.
type AckMode int

const (
	// AckLocal acknowledges a packet when the local write completes.
	AckLocal AckMode = iota
	// AckNotification additionally waits for a notification that Verify accepts.
	AckNotification
)

func (m AckMode) String() string {
	switch m {
	case AckLocal:
		return "local-completion"
	case AckNotification:
		return "notification-verified"
	default:
		return "unknown"
	}
}

// Notification is handed to a VerifyFunc together with the packet it answers.
type Notification struct {
	Data   []byte
	Packet []byte
	Index  int
	Total  int
}

// VerifyFunc decides whether a notification acknowledges the current packet.
type VerifyFunc func(n Notification) bool

// AckPolicy is chosen per Send.
type AckPolicy struct {
	Mode   AckMode
	Verify VerifyFunc
}

// LocalCompletionOnly treats a successful write completion as the ack.
func LocalCompletionOnly() AckPolicy {
	return AckPolicy{Mode: AckLocal}
}

// NotificationVerified waits for a notification after each write and asks
// verify whether it acknowledges the packet.
func NotificationVerified(verify VerifyFunc) AckPolicy {
	return AckPolicy{Mode: AckNotification, Verify: verify}
}

// EchoVerifier accepts a notification that repeats the packet byte for byte.
func EchoVerifier(n Notification) bool {
	return bytes.Equal(n.Data, n.Packet)
}

// ExactVerifier accepts a notification equal to want.
func ExactVerifier(want []byte) VerifyFunc {
	want = append([]byte(nil), want...)
	return func(n Notification) bool {
		return bytes.Equal(n.Data, want)
	}
}
