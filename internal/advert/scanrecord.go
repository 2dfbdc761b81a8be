// Package advert decodes raw BLE advertisement and scan response payloads.
package advert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vitaminmoo/blexfer/internal/bleuuid"
	"github.com/vitaminmoo/blexfer/internal/config"
)

// TxPowerUnknown is the TxPowerLevel of a record without a Tx Power Level field.
const TxPowerUnknown = math.MinInt32

// FlagsUnknown is the AdvertiseFlags of a record without a Flags field.
const FlagsUnknown = -1

// ScanRecord is the decoded form of one advertisement payload.
// It is read-only once returned by ParseScanRecord.
type ScanRecord struct {
	AdvertiseFlags int
	// ServiceUUIDs holds each listed service once, in order of first
	// appearance. It is nil when the payload lists no services.
	ServiceUUIDs []uuid.UUID
	// ManufacturerData maps every AD type byte seen in the payload to its data.
	// The 0xFF entry holds the company ID followed by the manufacturer data.
	ManufacturerData map[byte][]byte
	// ServiceData maps each service UUID to its data. The first field for a
	// UUID wins.
	ServiceData      map[uuid.UUID][]byte
	TxPowerLevel     int
	DeviceName       string
	Raw              []byte
}

var errTruncated = errors.New("AD structure exceeds data")

// Records splits raw advertising data into its TLV units.
// A zero length byte terminates the walk.
func Records(raw []byte) ([]Record, error) {
	var records []Record
	offset := 0

	for offset < len(raw) {
		length := int(raw[offset])
		if length == 0 {
			break
		}
		offset++
		if offset+length > len(raw) {
			return nil, fmt.Errorf("%w: length=%d, remaining=%d", errTruncated, length, len(raw)-offset)
		}

		records = append(records, Record{
			Type:   raw[offset],
			Length: byte(length),
			Data:   raw[offset+1 : offset+length],
		})
		offset += length
	}

	return records, nil
}

// ParseScanRecord decodes raw advertising data. It never fails: a malformed
// payload yields an empty record that only carries Raw.
func ParseScanRecord(raw []byte) ScanRecord {
	rec, err := parse(raw)
	if err != nil {
		config.Debugf("Unable to parse scan record %X: %v", raw, err)
		return emptyRecord(raw)
	}
	return rec
}

func emptyRecord(raw []byte) ScanRecord {
	return ScanRecord{
		AdvertiseFlags: FlagsUnknown,
		TxPowerLevel:   TxPowerUnknown,
		Raw:            raw,
	}
}

func parse(raw []byte) (ScanRecord, error) {
	rec := emptyRecord(raw)
	if raw == nil {
		return rec, errors.New("nil scan record")
	}

	records, err := Records(raw)
	if err != nil {
		return rec, err
	}

	for _, r := range records {
		switch r.Type {
		case ADTypeFlags:
			if len(r.Data) < 1 {
				return rec, errors.New("empty flags field")
			}
			rec.AdvertiseFlags = int(r.Data[0])

		case ADTypeIncomplete16BitServiceUUIDs, ADTypeComplete16BitServiceUUIDs:
			if rec.ServiceUUIDs, err = appendServiceUUIDs(rec.ServiceUUIDs, r.Data, bleuuid.Len16); err != nil {
				return rec, err
			}
		case ADTypeIncomplete32BitServiceUUIDs, ADTypeComplete32BitServiceUUIDs:
			if rec.ServiceUUIDs, err = appendServiceUUIDs(rec.ServiceUUIDs, r.Data, bleuuid.Len32); err != nil {
				return rec, err
			}
		case ADTypeIncomplete128BitServiceUUIDs, ADTypeComplete128BitServiceUUIDs:
			if rec.ServiceUUIDs, err = appendServiceUUIDs(rec.ServiceUUIDs, r.Data, bleuuid.Len128); err != nil {
				return rec, err
			}

		case ADTypeShortenedLocalName, ADTypeCompleteLocalName:
			if !utf8.Valid(r.Data) {
				return rec, errors.New("local name is not valid UTF-8")
			}
			rec.DeviceName = string(r.Data)

		case ADTypeTxPowerLevel:
			if len(r.Data) < 1 {
				return rec, errors.New("empty tx power field")
			}
			rec.TxPowerLevel = int(int8(r.Data[0]))

		case ADTypeServiceData16Bit, ADTypeServiceData32Bit, ADTypeServiceData128Bit:
			uuidLen := bleuuid.Len16
			if r.Type == ADTypeServiceData32Bit {
				uuidLen = bleuuid.Len32
			} else if r.Type == ADTypeServiceData128Bit {
				uuidLen = bleuuid.Len128
			}
			if len(r.Data) < uuidLen {
				return rec, fmt.Errorf("service data shorter than its UUID: %d < %d", len(r.Data), uuidLen)
			}
			u, err := bleuuid.Parse(r.Data[:uuidLen])
			if err != nil {
				return rec, err
			}
			if rec.ServiceData == nil {
				rec.ServiceData = make(map[uuid.UUID][]byte)
			}
			if _, ok := rec.ServiceData[u]; !ok {
				rec.ServiceData[u] = r.Data[uuidLen:]
			}
		}
	}

	if len(rec.ServiceUUIDs) == 0 {
		rec.ServiceUUIDs = nil
	}

	rec.ManufacturerData, err = typeMap(raw)
	if err != nil {
		return rec, err
	}

	return rec, nil
}

func appendServiceUUIDs(dst []uuid.UUID, data []byte, uuidLen int) ([]uuid.UUID, error) {
	if len(data)%uuidLen != 0 {
		return dst, fmt.Errorf("%w: %d bytes is not a multiple of %d", bleuuid.ErrInvalidUUIDEncoding, len(data), uuidLen)
	}
	for i := 0; i < len(data); i += uuidLen {
		u, err := bleuuid.Parse(data[i : i+uuidLen])
		if err != nil {
			return dst, err
		}
		if !slices.Contains(dst, u) {
			dst = append(dst, u)
		}
	}
	return dst, nil
}

// typeMap walks the payload a second time and keys every field by its type
// byte. It stops at a zero length or a zero type. The first occurrence of a
// type wins.
func typeMap(raw []byte) (map[byte][]byte, error) {
	m := make(map[byte][]byte)
	index := 0
	for index < len(raw) {
		length := int(raw[index])
		index++
		if length == 0 {
			break
		}
		if index >= len(raw) {
			return nil, errTruncated
		}
		adType := raw[index]
		if adType == 0 {
			break
		}
		if index+length > len(raw) {
			return nil, errTruncated
		}
		if _, seen := m[adType]; !seen {
			m[adType] = raw[index+1 : index+length]
		}
		index += length
	}
	return m, nil
}

// Empty reports whether the record carries no decoded fields.
func (r ScanRecord) Empty() bool {
	return r.AdvertiseFlags == FlagsUnknown &&
		r.TxPowerLevel == TxPowerUnknown &&
		r.ServiceUUIDs == nil &&
		len(r.ManufacturerData) == 0 &&
		len(r.ServiceData) == 0 &&
		r.DeviceName == ""
}

// HasServiceUUID reports whether u is in the advertised service list.
func (r ScanRecord) HasServiceUUID(u uuid.UUID) bool {
	for _, s := range r.ServiceUUIDs {
		if s == u {
			return true
		}
	}
	return false
}

// ServiceDataFor returns the service data advertised for u.
func (r ScanRecord) ServiceDataFor(u uuid.UUID) ([]byte, bool) {
	data, ok := r.ServiceData[u]
	return data, ok
}

// ManufacturerSpecific splits the Manufacturer Specific Data field into its
// little-endian company identifier and the remaining bytes.
func (r ScanRecord) ManufacturerSpecific() (companyID uint16, data []byte, found bool) {
	payload, ok := r.ManufacturerData[ADTypeManufacturerSpecificData]
	if !ok || len(payload) < 2 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint16(payload[0:2]), payload[2:], true
}
