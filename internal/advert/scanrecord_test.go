package advert

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/vitaminmoo/blexfer/internal/bleuuid"
)

func TestParseScanRecord_FlagsAndService(t *testing.T) {
	raw := []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0xAA, 0xBB}

	rec := ParseScanRecord(raw)

	if rec.AdvertiseFlags != 6 {
		t.Errorf("AdvertiseFlags = %d, want 6", rec.AdvertiseFlags)
	}
	want := uuid.MustParse("0000BBAA-0000-1000-8000-00805F9B34FB")
	if len(rec.ServiceUUIDs) != 1 || rec.ServiceUUIDs[0] != want {
		t.Fatalf("ServiceUUIDs = %v, want [%s]", rec.ServiceUUIDs, want)
	}
	if rec.TxPowerLevel != TxPowerUnknown {
		t.Errorf("TxPowerLevel = %d, want TxPowerUnknown", rec.TxPowerLevel)
	}
	if rec.DeviceName != "" {
		t.Errorf("DeviceName = %q, want empty", rec.DeviceName)
	}
	if !bytes.Equal(rec.Raw, raw) {
		t.Errorf("Raw = %X, want %X", rec.Raw, raw)
	}
}

func TestParseScanRecord_AllFields(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x1A, // flags
		0x05, 0x02, 0x0D, 0x18, 0x0F, 0x18, // incomplete 16-bit: 180D, 180F
		0x05, 0x05, 0x78, 0x56, 0x34, 0x12, // complete 32-bit: 12345678
		0x11, 0x07, // complete 128-bit
		0x84, 0x21, 0x75, 0x01, 0x05, 0xF4, 0x3F, 0xB8,
		0x65, 0x48, 0x99, 0xF6, 0x2E, 0xF0, 0x60, 0x8E,
		0x05, 0x09, 'b', 'l', 'e', '!', // complete local name
		0x02, 0x0A, 0xF4, // tx power -12
		0x05, 0x16, 0xAA, 0xFE, 0x10, 0x20, // service data for FEAA
		0x05, 0xFF, 0x4C, 0x00, 0x02, 0x15, // Apple manufacturer data
	}

	rec := ParseScanRecord(raw)

	if rec.AdvertiseFlags != 0x1A {
		t.Errorf("AdvertiseFlags = 0x%X, want 0x1A", rec.AdvertiseFlags)
	}

	wantServices := []uuid.UUID{
		bleuuid.From16(0x180D),
		bleuuid.From16(0x180F),
		bleuuid.From32(0x12345678),
		uuid.MustParse("8e60f02e-f699-4865-b83f-f40501752184"),
	}
	if len(rec.ServiceUUIDs) != len(wantServices) {
		t.Fatalf("got %d service UUIDs, want %d: %v", len(rec.ServiceUUIDs), len(wantServices), rec.ServiceUUIDs)
	}
	for i, want := range wantServices {
		if rec.ServiceUUIDs[i] != want {
			t.Errorf("ServiceUUIDs[%d] = %s, want %s", i, rec.ServiceUUIDs[i], want)
		}
	}
	if !rec.HasServiceUUID(bleuuid.From16(0x180F)) {
		t.Error("HasServiceUUID(180F) = false")
	}

	if rec.DeviceName != "ble!" {
		t.Errorf("DeviceName = %q, want %q", rec.DeviceName, "ble!")
	}
	if rec.TxPowerLevel != -12 {
		t.Errorf("TxPowerLevel = %d, want -12", rec.TxPowerLevel)
	}

	sd, ok := rec.ServiceDataFor(bleuuid.From16(0xFEAA))
	if !ok || !bytes.Equal(sd, []byte{0x10, 0x20}) {
		t.Errorf("ServiceDataFor(FEAA) = %X, %v", sd, ok)
	}

	companyID, data, found := rec.ManufacturerSpecific()
	if !found || companyID != 0x004C || !bytes.Equal(data, []byte{0x02, 0x15}) {
		t.Errorf("ManufacturerSpecific() = 0x%04X, %X, %v", companyID, data, found)
	}
}

func TestParseScanRecord_TypeMapKeysEveryType(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x06,
		0x03, 0x19, 0xC1, 0x03, // appearance
		0x03, 0xFF, 0x01, 0x02,
		0x03, 0xFF, 0x03, 0x04, // duplicate type, first wins
	}

	rec := ParseScanRecord(raw)

	tests := []struct {
		adType byte
		want   []byte
	}{
		{ADTypeFlags, []byte{0x06}},
		{ADTypeAppearance, []byte{0xC1, 0x03}},
		{ADTypeManufacturerSpecificData, []byte{0x01, 0x02}},
	}
	for _, tt := range tests {
		got, ok := rec.ManufacturerData[tt.adType]
		if !ok {
			t.Errorf("ManufacturerData[0x%02X] missing", tt.adType)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("ManufacturerData[0x%02X] = %X, want %X", tt.adType, got, tt.want)
		}
	}
	if len(rec.ManufacturerData) != 3 {
		t.Errorf("ManufacturerData has %d keys, want 3", len(rec.ManufacturerData))
	}
}

func TestParseScanRecord_TypeMapStopsAtZeroType(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x06,
		0x02, 0x00, 0x55,
		0x02, 0x0A, 0x04,
	}

	rec := ParseScanRecord(raw)

	if _, ok := rec.ManufacturerData[ADTypeTxPowerLevel]; ok {
		t.Error("type map should stop at the zero type byte")
	}
	// the field pass does not stop at a zero type
	if rec.TxPowerLevel != 4 {
		t.Errorf("TxPowerLevel = %d, want 4", rec.TxPowerLevel)
	}
}

func TestParseScanRecord_ZeroLengthTerminates(t *testing.T) {
	raw := []byte{0x02, 0x01, 0x06, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}

	rec := ParseScanRecord(raw)

	if rec.AdvertiseFlags != 6 {
		t.Errorf("AdvertiseFlags = %d, want 6", rec.AdvertiseFlags)
	}
	if rec.ServiceUUIDs != nil {
		t.Errorf("ServiceUUIDs = %v, want nil", rec.ServiceUUIDs)
	}
}

func TestParseScanRecord_EmptyServiceListIsNil(t *testing.T) {
	rec := ParseScanRecord([]byte{0x01, 0x03})
	if rec.ServiceUUIDs != nil {
		t.Errorf("ServiceUUIDs = %v, want nil", rec.ServiceUUIDs)
	}
	if rec.Empty() {
		t.Error("record with a (empty) service list field still has a type map entry")
	}
}

func TestParseScanRecord_DuplicateServices(t *testing.T) {
	svcA := bleuuid.From16(0xBBAA)
	svcB := bleuuid.From16(0x180D)
	tests := []struct {
		name string
		raw  []byte
		want []uuid.UUID
	}{
		{"incomplete then complete list", []byte{0x03, 0x02, 0xAA, 0xBB, 0x03, 0x03, 0xAA, 0xBB}, []uuid.UUID{svcA}},
		{"repeated within one list", []byte{0x05, 0x03, 0xAA, 0xBB, 0xAA, 0xBB}, []uuid.UUID{svcA}},
		{"order of first appearance", []byte{0x05, 0x03, 0x0D, 0x18, 0xAA, 0xBB, 0x03, 0x02, 0x0D, 0x18}, []uuid.UUID{svcB, svcA}},
		{"same service as 16 and 128 bit", []byte{
			0x03, 0x03, 0xAA, 0xBB,
			0x11, 0x07, 0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80, 0x00, 0x10, 0x00, 0x00, 0xAA, 0xBB, 0x00, 0x00,
		}, []uuid.UUID{svcA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseScanRecord(tt.raw)
			if len(rec.ServiceUUIDs) != len(tt.want) {
				t.Fatalf("ServiceUUIDs = %v, want %v", rec.ServiceUUIDs, tt.want)
			}
			for i := range tt.want {
				if rec.ServiceUUIDs[i] != tt.want[i] {
					t.Errorf("ServiceUUIDs[%d] = %s, want %s", i, rec.ServiceUUIDs[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseScanRecord_DuplicateServiceData(t *testing.T) {
	raw := []byte{0x04, 0x16, 0xAA, 0xBB, 0x01, 0x04, 0x16, 0xAA, 0xBB, 0x02}

	rec := ParseScanRecord(raw)

	data, ok := rec.ServiceDataFor(bleuuid.From16(0xBBAA))
	if !ok {
		t.Fatal("no service data for 0xBBAA")
	}
	if !bytes.Equal(data, []byte{0x01}) {
		t.Errorf("service data = % X, want 01", data)
	}
	if len(rec.ServiceData) != 1 {
		t.Errorf("ServiceData has %d entries, want 1", len(rec.ServiceData))
	}
}

func TestParseScanRecord_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"length exceeds buffer", []byte{0x02, 0x01, 0x06, 0x09, 0x09, 'a', 'b'}},
		{"uuid list not a multiple of 2", []byte{0x04, 0x03, 0xAA, 0xBB, 0xCC}},
		{"uuid list not a multiple of 16", []byte{0x05, 0x07, 0x01, 0x02, 0x03, 0x04}},
		{"service data shorter than uuid", []byte{0x02, 0x16, 0xAA}},
		{"empty flags", []byte{0x01, 0x01}},
		{"empty tx power", []byte{0x01, 0x0A}},
		{"invalid utf-8 name", []byte{0x03, 0x09, 0xC3, 0x28}},
		{"nil input", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseScanRecord(tt.raw)

			if !rec.Empty() {
				t.Errorf("expected empty record, got %+v", rec)
			}
			if rec.AdvertiseFlags != -1 {
				t.Errorf("AdvertiseFlags = %d, want -1", rec.AdvertiseFlags)
			}
			if rec.TxPowerLevel != TxPowerUnknown {
				t.Errorf("TxPowerLevel = %d, want TxPowerUnknown", rec.TxPowerLevel)
			}
			if rec.ServiceUUIDs != nil || rec.ManufacturerData != nil || rec.ServiceData != nil {
				t.Error("expected collections to be absent")
			}
			if !bytes.Equal(rec.Raw, tt.raw) {
				t.Errorf("Raw = %X, want %X", rec.Raw, tt.raw)
			}
		})
	}
}

func TestRecords(t *testing.T) {
	raw := []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0xAA, 0xBB, 0x00}

	records, err := Records(raw)
	if err != nil {
		t.Fatalf("Records() unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].Type != ADTypeComplete16BitServiceUUIDs || records[1].Length != 3 {
		t.Errorf("records[1] = %+v", records[1])
	}
	if !bytes.Equal(records[1].Data, []byte{0xAA, 0xBB}) {
		t.Errorf("records[1].Data = %X", records[1].Data)
	}

	if _, err := Records([]byte{0x05, 0x01}); err == nil {
		t.Error("Records() expected error for truncated data")
	}
}

func TestADTypeName(t *testing.T) {
	if got := ADTypeName(ADTypeCompleteLocalName); got != "Complete Local Name" {
		t.Errorf("ADTypeName(0x09) = %q", got)
	}
	if got := ADTypeName(0x7E); got != "Unknown(0x7E)" {
		t.Errorf("ADTypeName(0x7E) = %q", got)
	}
}
