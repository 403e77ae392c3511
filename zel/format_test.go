package zel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFileHeader(t *testing.T) {
	raw := make([]byte, fileHeaderSize)
	copy(raw, "ZEL0")
	raw[4] = 1           // version
	raw[6] = 40          // headerSize
	raw[8] = 64          // width
	raw[10] = 32         // height
	raw[12] = 16         // zoneWidth
	raw[14] = 8          // zoneHeight
	raw[16] = 0          // colorFormat
	raw[17] = 0b10101101 // flags: global palette, index table, reserved bits
	raw[18] = 3          // frameCount
	raw[22] = 33         // defaultFrameDuration
	raw[24] = 0xEE       // first reserved byte

	h := parseFileHeader(raw)
	require.Equal(t, fileMagic, h.Magic)
	require.Equal(t, uint16(1), h.Version)
	require.Equal(t, uint16(40), h.HeaderSize)
	require.Equal(t, uint16(64), h.Width)
	require.Equal(t, uint16(32), h.Height)
	require.Equal(t, uint16(16), h.ZoneWidth)
	require.Equal(t, uint16(8), h.ZoneHeight)
	require.Equal(t, ColorFormatIndexed8, h.ColorFormat)
	require.True(t, h.Flags.HasGlobalPalette)
	require.False(t, h.Flags.HasFrameLocalPalettes)
	require.True(t, h.Flags.HasFrameIndexTable)
	require.Equal(t, uint8(0b10101), h.Flags.Reserved)
	require.Equal(t, uint32(3), h.FrameCount)
	require.Equal(t, uint16(33), h.DefaultFrameDuration)
	require.Equal(t, byte(0xEE), h.Reserved[0])

	require.True(t, validFileHeader(&h))
}

func TestValidFileHeaderRejections(t *testing.T) {
	base := func() FileHeader {
		return FileHeader{
			Magic:   fileMagic,
			Version: 1,
			Width:   4, Height: 2,
			ZoneWidth: 2, ZoneHeight: 1,
		}
	}

	h := base()
	h.Magic[3] = '1'
	require.False(t, validFileHeader(&h))

	h = base()
	h.Version = 2
	require.False(t, validFileHeader(&h))

	h = base()
	h.Width = 0
	require.False(t, validFileHeader(&h))

	h = base()
	h.ZoneWidth = 3 // not a divisor of width
	require.False(t, validFileHeader(&h))

	h = base()
	h.ColorFormat = 1
	require.False(t, validFileHeader(&h))

	h = base()
	require.True(t, validFileHeader(&h))
}

func TestParsePaletteHeader(t *testing.T) {
	raw := []byte{1, 10, 0x00, 0x01, 1, 0xAA, 0xBB, 0xCC}

	h := parsePaletteHeader(raw)
	require.Equal(t, PaletteTypeLocal, h.Type)
	require.Equal(t, uint8(10), h.HeaderSize)
	require.Equal(t, uint16(256), h.EntryCount)
	require.Equal(t, uint8(ColorRGB565BE), h.ColorEncoding)
	require.Equal(t, [3]byte{0xAA, 0xBB, 0xCC}, h.Reserved)
}

func TestParseFrameHeader(t *testing.T) {
	raw := []byte{
		1,          // blockType
		20,         // headerSize
		0b00000111, // keyframe | local palette | previous-frame base
		4, 0,       // zoneCount
		CompressionLZ4,
		7, 0, // referenceFrameIndex
		16, 0, // localPaletteEntryCount
		1, 2, 3, 4, // reserved
	}

	h := parseFrameHeader(raw)
	require.Equal(t, uint8(1), h.BlockType)
	require.Equal(t, uint8(20), h.HeaderSize)
	require.True(t, h.Flags.Keyframe)
	require.True(t, h.Flags.HasLocalPalette)
	require.True(t, h.Flags.UsePreviousFrameAsBase)
	require.Equal(t, uint16(4), h.ZoneCount)
	require.Equal(t, CompressionLZ4, h.CompressionType)
	require.Equal(t, uint16(7), h.ReferenceFrameIndex)
	require.Equal(t, uint16(16), h.LocalPaletteEntryCount)
	require.Equal(t, [4]byte{1, 2, 3, 4}, h.Reserved)
}

func TestParseFrameIndexEntry(t *testing.T) {
	raw := []byte{
		0x40, 0x00, 0x00, 0x00, // frameOffset = 64
		0x80, 0x01, 0x00, 0x00, // frameSize = 384
		0b00000001, // keyframe
		50, 0,      // frameDuration
	}

	e := parseFrameIndexEntry(raw)
	require.Equal(t, uint32(64), e.FrameOffset)
	require.Equal(t, uint32(384), e.FrameSize)
	require.True(t, e.Flags.Keyframe)
	require.False(t, e.Flags.HasLocalPalette)
	require.Equal(t, uint16(50), e.FrameDuration)
}
