package ble

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitaminmoo/blexfer/internal/protocol"
	"github.com/vitaminmoo/blexfer/internal/transfer"
)

var (
	_ transfer.GattLink = (*Loopback)(nil)
	_ transfer.GattLink = (*DeviceLink)(nil)
)

func loopbackOptions(ack transfer.AckPolicy) transfer.Options {
	return transfer.Options{
		PacketSize:       protocol.PacketSizeForMTU(protocol.DefaultMTU),
		PerPacketTimeout: 40 * time.Millisecond,
		MaxTryCount:      2,
		Ack:              ack,
	}
}

func runTransfer(t *testing.T, link transfer.GattLink, payload []byte, opts transfer.Options) error {
	t.Helper()
	sess, err := transfer.NewSender(link).Send(payload, opts, transfer.Callbacks{})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sess.Wait(ctx)
}

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestLoopbackTransfer(t *testing.T) {
	tests := []struct {
		name string
		cfg  LoopbackConfig
		ack  transfer.AckPolicy
	}{
		{"local ack", LoopbackConfig{}, transfer.LocalCompletionOnly()},
		{"echo", LoopbackConfig{Echo: true}, transfer.NotificationVerified(transfer.EchoVerifier)},
		{"drop every third", LoopbackConfig{DropEvery: 3}, transfer.LocalCompletionOnly()},
		{"fail every other", LoopbackConfig{FailEvery: 2}, transfer.LocalCompletionOnly()},
		{"echo with drops", LoopbackConfig{Echo: true, DropEvery: 4}, transfer.NotificationVerified(transfer.EchoVerifier)},
		{"fixed reply", LoopbackConfig{Reply: []byte{0x06}}, transfer.NotificationVerified(transfer.ExactVerifier([]byte{0x06}))},
		{"slow writes", LoopbackConfig{WriteDelay: 5 * time.Millisecond}, transfer.LocalCompletionOnly()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := NewLoopback(tt.cfg)
			payload := testPayload(150)

			if err := runTransfer(t, link, payload, loopbackOptions(tt.ack)); err != nil {
				t.Fatalf("transfer failed: %v", err)
			}
			if got := link.Received(); !bytes.Equal(got, payload) {
				t.Errorf("received %d bytes, want %d", len(got), len(payload))
			}
			if len(link.Packets()) != protocol.PacketCount(len(payload), 20) {
				t.Errorf("delivered %d packets, want %d", len(link.Packets()), protocol.PacketCount(len(payload), 20))
			}
		})
	}
}

func TestLoopbackDropAllFails(t *testing.T) {
	link := NewLoopback(LoopbackConfig{DropEvery: 1})
	opts := loopbackOptions(transfer.LocalCompletionOnly())

	err := runTransfer(t, link, testPayload(10), opts)
	var terr *transfer.TransferError
	if !errors.As(err, &terr) || terr.Cause != transfer.CauseTimeout {
		t.Fatalf("transfer returned %v, want timeout", err)
	}
	if link.Writes() != opts.MaxTryCount+1 {
		t.Errorf("issued %d writes, want %d", link.Writes(), opts.MaxTryCount+1)
	}
}

func TestLoopbackWrongReply(t *testing.T) {
	link := NewLoopback(LoopbackConfig{Reply: []byte{0x15}})
	opts := loopbackOptions(transfer.NotificationVerified(transfer.ExactVerifier([]byte{0x06})))

	err := runTransfer(t, link, testPayload(10), opts)
	var terr *transfer.TransferError
	if !errors.As(err, &terr) || terr.Cause != transfer.CauseWrongNotify {
		t.Fatalf("transfer returned %v, want wrong notify", err)
	}
}

func TestLoopbackFailureError(t *testing.T) {
	link := NewLoopback(LoopbackConfig{FailEvery: 1})
	opts := loopbackOptions(transfer.LocalCompletionOnly())
	opts.MaxTryCount = 0

	err := runTransfer(t, link, testPayload(10), opts)
	if !errors.Is(err, ErrSimulatedFailure) {
		t.Fatalf("transfer returned %v, want ErrSimulatedFailure", err)
	}
}

func TestLoopbackMTU(t *testing.T) {
	if got := NewLoopback(LoopbackConfig{}).MTU(); got != protocol.DefaultMTU {
		t.Errorf("MTU() = %d, want %d", got, protocol.DefaultMTU)
	}
	if got := NewLoopback(LoopbackConfig{MTU: 247}).MTU(); got != 247 {
		t.Errorf("MTU() = %d, want 247", got)
	}
}
