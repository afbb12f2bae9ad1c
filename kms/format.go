package kms

import (
	"encoding/binary"
	"fmt"
)

// fourcc packs a four-character pixel format code.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats used by this module.
var (
	FormatXRGB8888    = fourcc('X', 'R', '2', '4')
	FormatARGB8888    = fourcc('A', 'R', '2', '4')
	FormatXBGR8888    = fourcc('X', 'B', '2', '4')
	FormatABGR8888    = fourcc('A', 'B', '2', '4')
	FormatXRGB2101010 = fourcc('X', 'R', '3', '0')
	FormatARGB2101010 = fourcc('A', 'R', '3', '0')
	FormatXBGR2101010 = fourcc('X', 'B', '3', '0')
	FormatABGR2101010 = fourcc('A', 'B', '3', '0')
)

// Memory-layout modifiers.
const (
	FormatModLinear  uint64 = 0
	FormatModInvalid uint64 = 0x00ffffffffffffff
)

// FormatName names the formats this module works with.
func FormatName(format uint32) string {
	switch format {
	case FormatXRGB8888:
		return "XRGB8888"
	case FormatARGB8888:
		return "ARGB8888"
	case FormatXBGR8888:
		return "XBGR8888"
	case FormatABGR8888:
		return "ABGR8888"
	case FormatXRGB2101010:
		return "XRGB2101010"
	case FormatARGB2101010:
		return "ARGB2101010"
	case FormatXBGR2101010:
		return "XBGR2101010"
	case FormatABGR2101010:
		return "ABGR2101010"
	default:
		return fmt.Sprintf("%c%c%c%c",
			byte(format), byte(format>>8), byte(format>>16), byte(format>>24))
	}
}

// FormatPair is an alpha format and its opaque sibling.
type FormatPair struct {
	Alpha  uint32
	Opaque uint32
}

// FormatPairFor maps a requested opaque format to the pair tried during
// negotiation. Unknown formats fall back to the 8-bit RGB pair.
func FormatPairFor(opaque uint32) FormatPair {
	switch opaque {
	case FormatXBGR8888:
		return FormatPair{Alpha: FormatABGR8888, Opaque: FormatXBGR8888}
	case FormatXRGB2101010:
		return FormatPair{Alpha: FormatARGB2101010, Opaque: FormatXRGB2101010}
	case FormatXBGR2101010:
		return FormatPair{Alpha: FormatABGR2101010, Opaque: FormatXBGR2101010}
	default:
		return FormatPair{Alpha: FormatARGB8888, Opaque: FormatXRGB8888}
	}
}

// PickFormat negotiates the scanout format against a plane's supported
// formats: the alpha format wins when present, the opaque one is the
// fallback, anything else fails.
func PickFormat(planeFormats []uint32, pair FormatPair) (uint32, error) {
	var haveAlpha, haveOpaque bool
	for _, f := range planeFormats {
		switch f {
		case pair.Alpha:
			haveAlpha = true
		case pair.Opaque:
			haveOpaque = true
		}
	}
	if haveAlpha {
		return pair.Alpha, nil
	}
	if haveOpaque {
		return pair.Opaque, nil
	}
	return 0, fmt.Errorf("plane supports neither %s nor %s",
		FormatName(pair.Alpha), FormatName(pair.Opaque))
}

// IN_FORMATS blob header: version, flags, count_formats, formats_offset,
// count_modifiers, modifiers_offset — all u32.
const (
	inFormatsHeaderLen  = 24
	formatModifierLen   = 24 // struct drm_format_modifier
	modifierFormatsMask = 64 // formats bitmask width per modifier entry
)

// ParseFormatModifiers extracts from a plane's IN_FORMATS property blob the
// memory-layout modifiers advertised for format. Modifiers covering only
// other formats are ignored; an empty result means implicit layout only.
func ParseFormatModifiers(blob []byte, format uint32) ([]uint64, error) {
	if len(blob) < inFormatsHeaderLen {
		return nil, fmt.Errorf("short IN_FORMATS blob (%d bytes)", len(blob))
	}
	countFormats := int(binary.NativeEndian.Uint32(blob[8:12]))
	formatsOffset := int(binary.NativeEndian.Uint32(blob[12:16]))
	countModifiers := int(binary.NativeEndian.Uint32(blob[16:20]))
	modifiersOffset := int(binary.NativeEndian.Uint32(blob[20:24]))

	if formatsOffset+countFormats*4 > len(blob) {
		return nil, fmt.Errorf("IN_FORMATS formats array out of bounds")
	}
	if modifiersOffset+countModifiers*formatModifierLen > len(blob) {
		return nil, fmt.Errorf("IN_FORMATS modifiers array out of bounds")
	}

	formatAt := func(i int) uint32 {
		off := formatsOffset + i*4
		return binary.NativeEndian.Uint32(blob[off : off+4])
	}

	var modifiers []uint64
	for i := 0; i < countModifiers; i++ {
		off := modifiersOffset + i*formatModifierLen
		formats := binary.NativeEndian.Uint64(blob[off : off+8])
		offset := int(binary.NativeEndian.Uint32(blob[off+8 : off+12]))
		modifier := binary.NativeEndian.Uint64(blob[off+16 : off+24])

		for k := 0; k < modifierFormatsMask; k++ {
			if formats&(1<<uint(k)) == 0 {
				continue
			}
			idx := k + offset
			if idx >= countFormats {
				continue
			}
			if formatAt(idx) == format {
				modifiers = append(modifiers, modifier)
				break
			}
		}
	}
	return modifiers, nil
}
