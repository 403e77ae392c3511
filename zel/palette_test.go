package zel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalPaletteAsStored(t *testing.T) {
	d := openBasic(t)

	// No override: entries come back exactly as stored on disk.
	palette, err := d.GlobalPalette()
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0000, 0xFFFF}, palette)
	require.Equal(t, ColorRGB565LE, d.OutputColorEncoding())
}

func TestOutputEncodingOverrideRoundTrip(t *testing.T) {
	tf := basicFile()
	tf.globalPalette.entries = []uint16{0x00F8, 0x1234}

	d, err := OpenMemory(tf.build(t))
	require.NoError(t, err)
	defer d.Close()

	palette, err := d.GlobalPalette()
	require.NoError(t, err)
	require.Equal(t, []uint16{0x00F8, 0x1234}, palette)

	require.NoError(t, d.SetOutputColorEncoding(ColorRGB565BE))
	require.Equal(t, ColorRGB565BE, d.OutputColorEncoding())

	palette, err = d.GlobalPalette()
	require.NoError(t, err)
	require.Equal(t, []uint16{0xF800, 0x3412}, palette)

	// The decoded frame uses the swapped palette too.
	rgb := make([]uint16, 8)
	require.NoError(t, d.DecodeFrameRgb565(0, rgb, 4))
	require.Equal(t, uint16(0xF800), rgb[0])
	require.Equal(t, uint16(0x3412), rgb[1])

	// Switching back restores the original values: swap twice is identity.
	require.NoError(t, d.SetOutputColorEncoding(ColorRGB565LE))
	palette, err = d.GlobalPalette()
	require.NoError(t, err)
	require.Equal(t, []uint16{0x00F8, 0x1234}, palette)
}

func TestMatchingOverrideIsZeroConversion(t *testing.T) {
	d := openBasic(t)

	// Overriding to the source encoding must not change any entry.
	require.NoError(t, d.SetOutputColorEncoding(ColorRGB565LE))

	palette, err := d.GlobalPalette()
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0000, 0xFFFF}, palette)
}

func TestLocalPalette(t *testing.T) {
	tf := &testFile{
		width: 2, height: 1, zoneW: 2, zoneH: 1,
		defaultDuration: 16,
		globalPalette:   &testPalette{entries: []uint16{0x1111, 0x2222}},
		frames: []testFrame{
			{pixels: []byte{0, 1}},
			{
				pixels:       []byte{1, 0},
				localPalette: &testPalette{ptype: PaletteTypeLocal, entries: []uint16{0xAAAA, 0xBBBB, 0xCCCC}},
			},
		},
	}

	d, err := OpenMemory(tf.build(t))
	require.NoError(t, err)
	defer d.Close()

	usesLocal, err := d.FrameUsesLocalPalette(1)
	require.NoError(t, err)
	require.True(t, usesLocal)

	// Frame 0 resolves the global palette, frame 1 its own.
	palette, err := d.FramePalette(0)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x1111, 0x2222}, palette)

	palette, err = d.FramePalette(1)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xAAAA, 0xBBBB, 0xCCCC}, palette)

	rgb := make([]uint16, 2)
	require.NoError(t, d.DecodeFrameRgb565(1, rgb, 2))
	require.Equal(t, []uint16{0xBBBB, 0xAAAA}, rgb)
}

func TestLocalPaletteWithOverride(t *testing.T) {
	tf := &testFile{
		width: 1, height: 1, zoneW: 1, zoneH: 1,
		defaultDuration: 16,
		globalPalette:   &testPalette{entries: []uint16{0x1111}},
		frames: []testFrame{
			{
				pixels:       []byte{0},
				localPalette: &testPalette{ptype: PaletteTypeLocal, entries: []uint16{0x00F8}},
			},
		},
	}

	d, err := OpenMemory(tf.build(t))
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SetOutputColorEncoding(ColorRGB565BE))

	palette, err := d.FramePalette(0)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xF800}, palette)

	rgb := make([]uint16, 1)
	require.NoError(t, d.DecodeFrameRgb565(0, rgb, 1))
	require.Equal(t, uint16(0xF800), rgb[0])
}

func TestLocalPaletteStreamBacked(t *testing.T) {
	tf := &testFile{
		width: 2, height: 1, zoneW: 2, zoneH: 1,
		defaultDuration: 16,
		globalPalette:   &testPalette{entries: []uint16{0x1111}},
		frames: []testFrame{
			{
				pixels:       []byte{2, 0},
				localPalette: &testPalette{ptype: PaletteTypeLocal, entries: []uint16{0x0A0A, 0x0B0B, 0x0C0C}},
			},
		},
	}
	data := tf.build(t)

	d, err := OpenReaderAt(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer d.Close()

	palette, err := d.FramePalette(0)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0A0A, 0x0B0B, 0x0C0C}, palette)

	rgb := make([]uint16, 2)
	require.NoError(t, d.DecodeFrameRgb565(0, rgb, 2))
	require.Equal(t, []uint16{0x0C0C, 0x0A0A}, rgb)
}

func TestNoGlobalPalette(t *testing.T) {
	tf := &testFile{
		width: 1, height: 1, zoneW: 1, zoneH: 1,
		defaultDuration: 16,
		frames: []testFrame{
			{pixels: []byte{0}, localPalette: &testPalette{ptype: PaletteTypeLocal, entries: []uint16{0x1234}}},
			{pixels: []byte{0}},
		},
	}

	d, err := OpenMemory(tf.build(t))
	require.NoError(t, err)
	defer d.Close()

	require.False(t, d.HasGlobalPalette())

	_, err = d.GlobalPalette()
	require.ErrorIs(t, err, ErrOutOfBounds)

	// Frame 0 decodes against its local palette.
	rgb := make([]uint16, 1)
	require.NoError(t, d.DecodeFrameRgb565(0, rgb, 1))
	require.Equal(t, uint16(0x1234), rgb[0])

	// Frame 1 has no palette at all.
	_, err = d.FramePalette(1)
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.ErrorIs(t, d.DecodeFrameRgb565(1, rgb, 1), ErrOutOfBounds)
}

func TestLocalPaletteEntriesPastBlockEnd(t *testing.T) {
	tf := &testFile{
		width: 1, height: 1, zoneW: 1, zoneH: 1,
		defaultDuration: 16,
		frames: []testFrame{
			{pixels: []byte{0}, localPalette: &testPalette{ptype: PaletteTypeLocal, entries: []uint16{0x1234}}},
		},
	}
	data := tf.build(t)

	// Inflate the recorded entry count so the palette data would run past
	// the frame block.
	frameOffset := len(data) - (frameHeaderSize + paletteHeaderSize + paletteEntrySize + chunkSizePrefix + 1)
	data[frameOffset+frameHeaderSize+2] = 0xFF

	d, err := OpenMemory(data)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.FramePalette(0)
	require.ErrorIs(t, err, ErrCorruptData)

	dst := make([]byte, 1)
	require.ErrorIs(t, d.DecodeFrameIndex8(0, dst, 1), ErrCorruptData)
}

func TestSwapRGB565Identity(t *testing.T) {
	for _, v := range []uint16{0x0000, 0xFFFF, 0x00F8, 0x1234, 0xF800} {
		require.Equal(t, v, swapRGB565(swapRGB565(v)))
	}
}
