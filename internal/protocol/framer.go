// Package protocol splits payloads into GATT-write sized packets.
//
// Packets carry no header on the wire. Index and total are only known to the
// sender and are reported out of band.
package protocol

import (
	"errors"
	"fmt"
)

// DefaultMTU is the BLE 4.0 ATT MTU used before an exchange.
const DefaultMTU = 23

// WriteHeaderLen is the ATT Write Request overhead: [Opcode:1][Handle:2].
const WriteHeaderLen = 3

var (
	ErrEmptyPayload      = errors.New("payload is empty")
	ErrInvalidPacketSize = errors.New("packet size must be positive")
)

// Packet is one contiguous slice of a payload.
type Packet struct {
	Index int
	Total int
	Data  []byte
}

// PacketSizeForMTU returns the largest value a single write can carry.
// A non-positive mtu means the default MTU.
func PacketSizeForMTU(mtu int) int {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return mtu - WriteHeaderLen
}

// PacketCount returns ceil(payloadLen / packetSize).
func PacketCount(payloadLen, packetSize int) int {
	if payloadLen <= 0 || packetSize <= 0 {
		return 0
	}
	return (payloadLen + packetSize - 1) / packetSize
}

// PacketAt returns the packet at index. Data aliases payload.
func PacketAt(payload []byte, packetSize, index int) Packet {
	start := index * packetSize
	end := start + packetSize
	if end > len(payload) {
		end = len(payload)
	}
	return Packet{
		Index: index,
		Total: PacketCount(len(payload), packetSize),
		Data:  payload[start:end],
	}
}

// Frame splits payload into packets of at most packetSize bytes.
func Frame(payload []byte, packetSize int) ([]Packet, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if packetSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketSize, packetSize)
	}

	total := PacketCount(len(payload), packetSize)
	packets := make([]Packet, 0, total)
	for i := 0; i < total; i++ {
		packets = append(packets, PacketAt(payload, packetSize, i))
	}
	return packets, nil
}

// Reassemble concatenates packets in order.
func Reassemble(packets []Packet) []byte {
	totalSize := 0
	for _, p := range packets {
		totalSize += len(p.Data)
	}

	result := make([]byte, 0, totalSize)
	for _, p := range packets {
		result = append(result, p.Data...)
	}
	return result
}
