package advert

import "fmt"

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                        = 0x01 // Flags
	ADTypeIncomplete16BitServiceUUIDs  = 0x02 // Incomplete List of 16-bit Service UUIDs
	ADTypeComplete16BitServiceUUIDs    = 0x03 // Complete List of 16-bit Service UUIDs
	ADTypeIncomplete32BitServiceUUIDs  = 0x04 // Incomplete List of 32-bit Service UUIDs
	ADTypeComplete32BitServiceUUIDs    = 0x05 // Complete List of 32-bit Service UUIDs
	ADTypeIncomplete128BitServiceUUIDs = 0x06 // Incomplete List of 128-bit Service UUIDs
	ADTypeComplete128BitServiceUUIDs   = 0x07 // Complete List of 128-bit Service UUIDs
	ADTypeShortenedLocalName           = 0x08 // Shortened Local Name
	ADTypeCompleteLocalName            = 0x09 // Complete Local Name
	ADTypeTxPowerLevel                 = 0x0A // Tx Power Level
	ADTypeClassOfDevice                = 0x0D // Class of Device
	ADTypeServiceData16Bit             = 0x16 // Service Data - 16-bit UUID
	ADTypeAppearance                   = 0x19 // Appearance
	ADTypeServiceData32Bit             = 0x20 // Service Data - 32-bit UUID
	ADTypeServiceData128Bit            = 0x21 // Service Data - 128-bit UUID
	ADTypeURI                          = 0x24 // URI
	ADTypeManufacturerSpecificData     = 0xFF // Manufacturer Specific Data
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLELimitedDiscoverableMode     = 0x01 // LE Limited Discoverable Mode
	FlagLEGeneralDiscoverableMode     = 0x02 // LE General Discoverable Mode
	FlagBREDRNotSupported             = 0x04 // BR/EDR Not Supported
	FlagSimultaneousLEBREDRController = 0x08 // Simultaneous LE and BR/EDR to Same Device Capable (Controller)
	FlagSimultaneousLEBREDRHost       = 0x10 // Simultaneous LE and BR/EDR to Same Device Capable (Host)
)

// Record is one TLV unit of a raw advertisement.
// Format: [Length: 1 byte] [Type: 1 byte] [Data: Length-1 bytes]
type Record struct {
	Type   byte
	Length byte // includes the type byte
	Data   []byte
}

// ADTypeName returns a human-readable name for an AD type
func ADTypeName(adType byte) string {
	switch adType {
	case ADTypeFlags:
		return "Flags"
	case ADTypeIncomplete16BitServiceUUIDs:
		return "Incomplete 16-bit Service UUIDs"
	case ADTypeComplete16BitServiceUUIDs:
		return "Complete 16-bit Service UUIDs"
	case ADTypeIncomplete32BitServiceUUIDs:
		return "Incomplete 32-bit Service UUIDs"
	case ADTypeComplete32BitServiceUUIDs:
		return "Complete 32-bit Service UUIDs"
	case ADTypeIncomplete128BitServiceUUIDs:
		return "Incomplete 128-bit Service UUIDs"
	case ADTypeComplete128BitServiceUUIDs:
		return "Complete 128-bit Service UUIDs"
	case ADTypeShortenedLocalName:
		return "Shortened Local Name"
	case ADTypeCompleteLocalName:
		return "Complete Local Name"
	case ADTypeTxPowerLevel:
		return "Tx Power Level"
	case ADTypeClassOfDevice:
		return "Class of Device"
	case ADTypeServiceData16Bit:
		return "Service Data (16-bit UUID)"
	case ADTypeAppearance:
		return "Appearance"
	case ADTypeServiceData32Bit:
		return "Service Data (32-bit UUID)"
	case ADTypeServiceData128Bit:
		return "Service Data (128-bit UUID)"
	case ADTypeURI:
		return "URI"
	case ADTypeManufacturerSpecificData:
		return "Manufacturer Specific Data"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", adType)
	}
}
