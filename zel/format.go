// Package zel decodes ZEL animated-image containers: palette-indexed frames
// partitioned into a fixed grid of zones, indexed by absolute byte offsets
// for random access. The format targets memory-constrained playback; decodes
// write into caller-owned buffers and internal scratch grows monotonically.
package zel

import "encoding/binary"

// ColorFormat identifies the pixel representation of frame data.
type ColorFormat uint8

// ColorFormatIndexed8 is the only defined pixel format: each byte is an
// index into the active palette.
const ColorFormatIndexed8 ColorFormat = 0

// Compression types recorded per frame.
const (
	CompressionNone uint8 = 0
	CompressionLZ4  uint8 = 1
	CompressionRLE  uint8 = 2 // reserved in the format, not implemented
)

// ColorEncoding selects the byte order of RGB565 palette entries.
type ColorEncoding uint8

const (
	ColorRGB565LE ColorEncoding = 0
	ColorRGB565BE ColorEncoding = 1

	// encodingUnset marks the converted-palette cache as stale.
	encodingUnset ColorEncoding = 0xFF
)

// Palette scope as recorded in the palette header type byte. The decoder
// parses but does not validate it, matching the reference reader.
const (
	PaletteTypeGlobal uint8 = 0
	PaletteTypeLocal  uint8 = 1
)

// Minimum on-disk structure sizes. Blocks are walked with the recorded
// headerSize fields, never with these constants.
const (
	fileHeaderSize      = 34
	paletteHeaderSize   = 8
	frameHeaderSize     = 14
	frameIndexEntrySize = 11
)

const (
	formatVersion = 1

	chunkSizePrefix  = 4
	paletteEntrySize = 2
)

var fileMagic = [4]byte{'Z', 'E', 'L', '0'}

// HeaderFlags are the capability bits of the file header flag byte.
type HeaderFlags struct {
	HasGlobalPalette      bool
	HasFrameLocalPalettes bool
	HasFrameIndexTable    bool
	Reserved              uint8
}

// FrameFlags are the per-frame flag bits, shared by the frame header and
// the frame-index entry.
type FrameFlags struct {
	Keyframe               bool
	HasLocalPalette        bool
	UsePreviousFrameAsBase bool
	Reserved               uint8
}

// FileHeader is the 34-byte container header at offset zero.
type FileHeader struct {
	Magic                [4]byte
	Version              uint16
	HeaderSize           uint16
	Width                uint16
	Height               uint16
	ZoneWidth            uint16
	ZoneHeight           uint16
	ColorFormat          ColorFormat
	Flags                HeaderFlags
	FrameCount           uint32
	DefaultFrameDuration uint16
	Reserved             [10]byte
}

// PaletteHeader precedes entryCount RGB565 words in the declared byte order.
type PaletteHeader struct {
	Type          uint8
	HeaderSize    uint8
	EntryCount    uint16
	ColorEncoding uint8
	Reserved      [3]byte
}

// FrameHeader starts every frame block. ReferenceFrameIndex and the
// UsePreviousFrameAsBase flag are parsed but have no decode effect.
type FrameHeader struct {
	BlockType              uint8
	HeaderSize             uint8
	Flags                  FrameFlags
	ZoneCount              uint16
	CompressionType        uint8
	ReferenceFrameIndex    uint16
	LocalPaletteEntryCount uint16
	Reserved               [4]byte
}

// FrameIndexEntry is one 11-byte record of the frame-index table.
type FrameIndexEntry struct {
	FrameOffset   uint32
	FrameSize     uint32
	Flags         FrameFlags
	FrameDuration uint16
}

func parseFrameFlags(b uint8) FrameFlags {
	return FrameFlags{
		Keyframe:               b&0x01 != 0,
		HasLocalPalette:        b&0x02 != 0,
		UsePreviousFrameAsBase: b&0x04 != 0,
		Reserved:               b >> 3,
	}
}

// parseFileHeader deserializes a file header from src, which must hold at
// least fileHeaderSize bytes.
func parseFileHeader(src []byte) FileHeader {
	var h FileHeader
	copy(h.Magic[:], src[0:4])
	h.Version = binary.LittleEndian.Uint16(src[4:])
	h.HeaderSize = binary.LittleEndian.Uint16(src[6:])
	h.Width = binary.LittleEndian.Uint16(src[8:])
	h.Height = binary.LittleEndian.Uint16(src[10:])
	h.ZoneWidth = binary.LittleEndian.Uint16(src[12:])
	h.ZoneHeight = binary.LittleEndian.Uint16(src[14:])
	h.ColorFormat = ColorFormat(src[16])
	f := src[17]
	h.Flags = HeaderFlags{
		HasGlobalPalette:      f&0x01 != 0,
		HasFrameLocalPalettes: f&0x02 != 0,
		HasFrameIndexTable:    f&0x04 != 0,
		Reserved:              f >> 3,
	}
	h.FrameCount = binary.LittleEndian.Uint32(src[18:])
	h.DefaultFrameDuration = binary.LittleEndian.Uint16(src[22:])
	copy(h.Reserved[:], src[24:34])

	return h
}

// parsePaletteHeader deserializes a palette header from src, which must
// hold at least paletteHeaderSize bytes.
func parsePaletteHeader(src []byte) PaletteHeader {
	var h PaletteHeader
	h.Type = src[0]
	h.HeaderSize = src[1]
	h.EntryCount = binary.LittleEndian.Uint16(src[2:])
	h.ColorEncoding = src[4]
	copy(h.Reserved[:], src[5:8])

	return h
}

// parseFrameHeader deserializes a frame header from src, which must hold at
// least frameHeaderSize bytes.
func parseFrameHeader(src []byte) FrameHeader {
	var h FrameHeader
	h.BlockType = src[0]
	h.HeaderSize = src[1]
	h.Flags = parseFrameFlags(src[2])
	h.ZoneCount = binary.LittleEndian.Uint16(src[3:])
	h.CompressionType = src[5]
	h.ReferenceFrameIndex = binary.LittleEndian.Uint16(src[6:])
	h.LocalPaletteEntryCount = binary.LittleEndian.Uint16(src[8:])
	copy(h.Reserved[:], src[10:14])

	return h
}

// parseFrameIndexEntry deserializes one index record from src, which must
// hold at least frameIndexEntrySize bytes.
func parseFrameIndexEntry(src []byte) FrameIndexEntry {
	var e FrameIndexEntry
	e.FrameOffset = binary.LittleEndian.Uint32(src[0:])
	e.FrameSize = binary.LittleEndian.Uint32(src[4:])
	e.Flags = parseFrameFlags(src[8])
	e.FrameDuration = binary.LittleEndian.Uint16(src[9:])

	return e
}

func isValidColorEncoding(encoding uint8) bool {
	return encoding == uint8(ColorRGB565LE) || encoding == uint8(ColorRGB565BE)
}

// validFileHeader reports whether the header passes the open-time checks:
// magic, version, non-zero dimensions, zone grid divisibility, a zone count
// that fits in 16 bits, and the single defined color format.
func validFileHeader(h *FileHeader) bool {
	if h.Magic != fileMagic {
		return false
	}
	if h.Version != formatVersion {
		return false
	}
	if h.Width == 0 || h.Height == 0 || h.ZoneWidth == 0 || h.ZoneHeight == 0 {
		return false
	}
	if h.Width%h.ZoneWidth != 0 || h.Height%h.ZoneHeight != 0 {
		return false
	}

	zonesPerRow := uint32(h.Width / h.ZoneWidth)
	zonesPerCol := uint32(h.Height / h.ZoneHeight)
	zoneCount := zonesPerRow * zonesPerCol

	if zoneCount == 0 || zoneCount > 0xFFFF {
		return false
	}

	return h.ColorFormat == ColorFormatIndexed8
}
