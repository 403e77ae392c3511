package zel

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

// Fixture builders shared by the package tests. A testFile assembles a
// complete ZEL byte stream: file header, optional global palette block,
// frame-index table, frame blocks.

type testPalette struct {
	ptype     uint8
	encoding  ColorEncoding
	entries   []uint16
	headerPad int
}

type testFrame struct {
	pixels       []byte // width*height palette indices, row-major
	duration     uint16
	keyframe     bool
	compression  uint8
	localPalette *testPalette
	headerPad    int

	// corruption hooks
	trailing          []byte   // extra bytes inside the block after the chunks
	chunkOverride     [][]byte // verbatim chunk payloads instead of derived zones
	zoneCountOverride *uint16  // patches the frame header zoneCount field
}

type testFile struct {
	width, height   uint16
	zoneW, zoneH    uint16
	defaultDuration uint16
	globalPalette   *testPalette
	frames          []testFrame
	headerPad       int
	noIndexFlag     bool
}

func putU16(buf *bytes.Buffer, v uint16) { _ = binary.Write(buf, binary.LittleEndian, v) }
func putU32(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.LittleEndian, v) }

func appendPaletteBlock(buf *bytes.Buffer, p *testPalette) {
	buf.WriteByte(p.ptype)
	buf.WriteByte(uint8(paletteHeaderSize + p.headerPad))
	putU16(buf, uint16(len(p.entries)))
	buf.WriteByte(uint8(p.encoding))
	buf.Write(make([]byte, 3+p.headerPad))

	for _, e := range p.entries {
		putU16(buf, e)
	}
}

// zoneChunks splits a frame's pixels into row-major zone payloads,
// compressing each when the frame is LZ4.
func (tf *testFile) zoneChunks(t *testing.T, fr *testFrame) [][]byte {
	t.Helper()

	if fr.chunkOverride != nil {
		return fr.chunkOverride
	}

	zonesPerRow := int(tf.width / tf.zoneW)
	zonesPerCol := int(tf.height / tf.zoneH)

	var chunks [][]byte
	for zy := 0; zy < zonesPerCol; zy++ {
		for zx := 0; zx < zonesPerRow; zx++ {
			zone := make([]byte, 0, int(tf.zoneW)*int(tf.zoneH))
			for row := 0; row < int(tf.zoneH); row++ {
				start := (zy*int(tf.zoneH)+row)*int(tf.width) + zx*int(tf.zoneW)
				zone = append(zone, fr.pixels[start:start+int(tf.zoneW)]...)
			}

			if fr.compression == CompressionLZ4 {
				dst := make([]byte, lz4.CompressBlockBound(len(zone)))

				var c lz4.Compressor
				n, err := c.CompressBlock(zone, dst)
				require.NoError(t, err)
				require.Greater(t, n, 0, "zone pixels must be compressible for LZ4 fixtures")

				zone = dst[:n]
			}

			chunks = append(chunks, zone)
		}
	}

	return chunks
}

func (tf *testFile) frameBlock(t *testing.T, fr *testFrame) []byte {
	t.Helper()

	zoneCount := uint16((tf.width / tf.zoneW) * (tf.height / tf.zoneH))
	if fr.zoneCountOverride != nil {
		zoneCount = *fr.zoneCountOverride
	}

	var flags uint8
	if fr.keyframe {
		flags |= 0x01
	}
	if fr.localPalette != nil {
		flags |= 0x02
	}

	var localCount uint16
	if fr.localPalette != nil {
		localCount = uint16(len(fr.localPalette.entries))
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(1) // blockType, emitted by the writer but never validated
	buf.WriteByte(uint8(frameHeaderSize + fr.headerPad))
	buf.WriteByte(flags)
	putU16(buf, zoneCount)
	buf.WriteByte(fr.compression)
	putU16(buf, 0) // referenceFrameIndex
	putU16(buf, localCount)
	buf.Write(make([]byte, 4+fr.headerPad))

	if fr.localPalette != nil {
		appendPaletteBlock(buf, fr.localPalette)
	}

	for _, chunk := range tf.zoneChunks(t, fr) {
		putU32(buf, uint32(len(chunk)))
		buf.Write(chunk)
	}

	buf.Write(fr.trailing)

	return buf.Bytes()
}

func (tf *testFile) build(t *testing.T) []byte {
	t.Helper()

	if tf.zoneW == 0 {
		tf.zoneW = tf.width
	}
	if tf.zoneH == 0 {
		tf.zoneH = tf.height
	}

	var flags uint8 = 0x04
	if tf.noIndexFlag {
		flags = 0
	}
	if tf.globalPalette != nil {
		flags |= 0x01
	}
	for i := range tf.frames {
		if tf.frames[i].localPalette != nil {
			flags |= 0x02
		}
	}

	buf := new(bytes.Buffer)
	buf.WriteString("ZEL0")
	putU16(buf, formatVersion)
	putU16(buf, uint16(fileHeaderSize+tf.headerPad))
	putU16(buf, tf.width)
	putU16(buf, tf.height)
	putU16(buf, tf.zoneW)
	putU16(buf, tf.zoneH)
	buf.WriteByte(uint8(ColorFormatIndexed8))
	buf.WriteByte(flags)
	putU32(buf, uint32(len(tf.frames)))
	putU16(buf, tf.defaultDuration)
	buf.Write(make([]byte, 10+tf.headerPad))

	if tf.globalPalette != nil {
		appendPaletteBlock(buf, tf.globalPalette)
	}

	blocks := make([][]byte, len(tf.frames))
	offsets := make([]int, len(tf.frames))
	off := buf.Len() + len(tf.frames)*frameIndexEntrySize
	for i := range tf.frames {
		blocks[i] = tf.frameBlock(t, &tf.frames[i])
		offsets[i] = off
		off += len(blocks[i])
	}

	for i := range tf.frames {
		fr := &tf.frames[i]

		var entryFlags uint8
		if fr.keyframe {
			entryFlags |= 0x01
		}
		if fr.localPalette != nil {
			entryFlags |= 0x02
		}

		putU32(buf, uint32(offsets[i]))
		putU32(buf, uint32(len(blocks[i])))
		buf.WriteByte(entryFlags)
		putU16(buf, fr.duration)
	}

	for _, b := range blocks {
		buf.Write(b)
	}

	return buf.Bytes()
}

// basicFile is the canonical 4x2 single-frame, single-zone fixture: global
// palette {0x0000, 0xFFFF}, uncompressed checkerboard indices, default
// frame duration 16ms.
func basicFile() *testFile {
	return &testFile{
		width:           4,
		height:          2,
		zoneW:           4,
		zoneH:           2,
		defaultDuration: 16,
		globalPalette:   &testPalette{entries: []uint16{0x0000, 0xFFFF}},
		frames: []testFrame{
			{pixels: []byte{0, 1, 0, 1, 1, 0, 1, 0}},
		},
	}
}

func openBasic(t *testing.T) *Decoder {
	t.Helper()

	d, err := OpenMemory(basicFile().build(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}
