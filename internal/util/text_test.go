package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestIsTextData(t *testing.T) {
	tests := []struct {
		data     []byte
		expected bool
	}{
		{[]byte("hello"), true},
		{[]byte("line\r\n\ttab"), true},
		{[]byte{0x00}, false},
		{[]byte{0x7f}, false},
		{nil, true},
	}
	for _, tt := range tests {
		if got := IsTextData(tt.data); got != tt.expected {
			t.Errorf("IsTextData(%q) = %v, want %v", tt.data, got, tt.expected)
		}
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
		wantErr  bool
	}{
		{"plain", "020106", []byte{0x02, 0x01, 0x06}, false},
		{"spaces", "02 01 06", []byte{0x02, 0x01, 0x06}, false},
		{"colons", "aa:BB:cc", []byte{0xaa, 0xbb, 0xcc}, false},
		{"dashes", "00-11", []byte{0x00, 0x11}, false},
		{"prefix", "0x0303AABB", []byte{0x03, 0x03, 0xaa, 0xbb}, false},
		{"empty", "", []byte{}, false},
		{"odd length", "123", nil, true},
		{"not hex", "zz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHex(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHex(%q) failed: %v", tt.input, err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("ParseHex(%q) = %x, want %x", tt.input, got, tt.expected)
			}
		})
	}
}

func TestHexDump(t *testing.T) {
	var buf bytes.Buffer
	HexDump(&buf, []byte("0123456789abcdefXY\x00"))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "0000  30 31 32 33 34 35 36 37  38 39 ") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "|0123456789abcdef|") {
		t.Errorf("first line ascii = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0010  58 59 00 ") || !strings.HasSuffix(lines[1], "|XY.|") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes([]byte("ok")); got != `"ok"` {
		t.Errorf("FormatBytes(text) = %s", got)
	}
	if got := FormatBytes([]byte{0xde, 0xad}); got != "DEAD" {
		t.Errorf("FormatBytes(binary) = %s", got)
	}
}
