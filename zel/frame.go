package zel

import (
	"encoding/binary"
	"math"
)

// zoneLayout is the zone grid derived from the file header. Every frame of
// a file shares one layout.
type zoneLayout struct {
	zoneWidth      uint16
	zoneHeight     uint16
	zonesPerRow    uint32
	zonesPerCol    uint32
	zoneCount      uint32
	zonePixelBytes uint64
}

// zoneOrigin maps a row-major zone index to its top-left pixel coordinates
// in the frame.
func (l *zoneLayout) zoneOrigin(zoneIndex uint32) (x, y uint32) {
	x = (zoneIndex % l.zonesPerRow) * uint32(l.zoneWidth)
	y = (zoneIndex / l.zonesPerRow) * uint32(l.zoneHeight)

	return x, y
}

func (d *Decoder) computeZoneLayout() (zoneLayout, error) {
	h := &d.header

	if h.ZoneWidth == 0 || h.ZoneHeight == 0 {
		return zoneLayout{}, ErrCorruptData
	}
	if h.Width%h.ZoneWidth != 0 || h.Height%h.ZoneHeight != 0 {
		return zoneLayout{}, ErrCorruptData
	}

	zonesPerRow := uint32(h.Width / h.ZoneWidth)
	zonesPerCol := uint32(h.Height / h.ZoneHeight)
	zoneCount := zonesPerRow * zonesPerCol

	if zonesPerRow == 0 || zonesPerCol == 0 || zoneCount == 0 {
		return zoneLayout{}, ErrCorruptData
	}
	if zoneCount > 0xFFFF {
		return zoneLayout{}, ErrUnsupportedFormat
	}

	return zoneLayout{
		zoneWidth:      h.ZoneWidth,
		zoneHeight:     h.ZoneHeight,
		zonesPerRow:    zonesPerRow,
		zonesPerCol:    zonesPerCol,
		zoneCount:      zoneCount,
		zonePixelBytes: uint64(h.ZoneWidth) * uint64(h.ZoneHeight),
	}, nil
}

// frameZoneStream is a validated window over one frame block: the parsed
// frame header, the zone-data range in absolute file offsets, and the frame
// bytes themselves (a borrow of the input for memory-backed handles, the
// frame scratch for stream-backed ones).
type frameZoneStream struct {
	header         FrameHeader
	frameOffset    uint64
	frameSize      uint64
	zoneDataOffset uint64
	frameDataEnd   uint64
	layout         zoneLayout
	frameData      []byte
}

// initFrameZoneStream locates frame frameIndex, materializes its bytes,
// parses and validates the frame header, skips the optional local palette,
// and returns the zone-data window.
//
// Stream-backed handles fetch the whole block with a single read so the
// chunk cursor can work on stable bytes; peak memory stays bounded by the
// largest frame plus one zone of scratch.
func (d *Decoder) initFrameZoneStream(frameIndex uint32) (frameZoneStream, error) {
	var s frameZoneStream

	if frameIndex >= d.header.FrameCount {
		return s, ErrOutOfBounds
	}

	entry := d.frameIndexEntry(frameIndex)
	frameOffset := uint64(entry.FrameOffset)
	frameSize := uint64(entry.FrameSize)

	if frameSize == 0 {
		return s, ErrCorruptData
	}
	if !rangeFits(frameOffset, frameHeaderSize, d.size) || !rangeFits(frameOffset, frameSize, d.size) {
		return s, ErrCorruptData
	}

	var frameData []byte
	if d.data != nil {
		frameData = d.data[frameOffset : frameOffset+frameSize]
	} else {
		if uint64(cap(d.frameScratch)) < frameSize {
			d.frameScratch = make([]byte, frameSize)
		}
		frameData = d.frameScratch[:frameSize]

		if err := d.readAt(frameOffset, frameData); err != nil {
			return s, err
		}
	}

	if frameSize < frameHeaderSize {
		return s, ErrCorruptData
	}

	fh := parseFrameHeader(frameData[:frameHeaderSize])
	if uint64(fh.HeaderSize) < frameHeaderSize || uint64(fh.HeaderSize) > frameSize {
		return s, ErrCorruptData
	}

	relOffset := uint64(fh.HeaderSize)

	if fh.Flags.HasLocalPalette {
		if frameSize-relOffset < paletteHeaderSize {
			return s, ErrCorruptData
		}

		ph := parsePaletteHeader(frameData[relOffset : relOffset+paletteHeaderSize])
		if ph.HeaderSize < paletteHeaderSize || ph.EntryCount == 0 {
			return s, ErrCorruptData
		}
		if uint64(ph.HeaderSize) > frameSize-relOffset {
			return s, ErrCorruptData
		}

		paletteDataRel := relOffset + uint64(ph.HeaderSize)
		paletteBytes := uint64(ph.EntryCount) * paletteEntrySize

		if paletteBytes > frameSize-paletteDataRel {
			return s, ErrCorruptData
		}

		relOffset = paletteDataRel + paletteBytes
	}

	if relOffset > frameSize {
		return s, ErrCorruptData
	}

	layout, err := d.computeZoneLayout()
	if err != nil {
		return s, err
	}

	if layout.zoneCount == 0 || uint32(fh.ZoneCount) != layout.zoneCount {
		return s, ErrCorruptData
	}

	s.header = fh
	s.frameOffset = frameOffset
	s.frameSize = frameSize
	s.zoneDataOffset = frameOffset + relOffset
	s.frameDataEnd = frameOffset + frameSize
	s.layout = layout
	s.frameData = frameData

	return s, nil
}

// readZoneChunk consumes one {u32 size, payload} record at *cursor and
// advances it past the payload. The cursor is an absolute file offset
// inside the frame block.
func (s *frameZoneStream) readZoneChunk(cursor *uint64) ([]byte, error) {
	if s.frameData == nil {
		return nil, ErrInternal
	}
	if *cursor < s.frameOffset || *cursor > s.frameDataEnd {
		return nil, ErrCorruptData
	}

	relOffset := *cursor - s.frameOffset
	if s.frameSize-relOffset < chunkSizePrefix {
		return nil, ErrCorruptData
	}

	chunkSize := uint64(binary.LittleEndian.Uint32(s.frameData[relOffset:]))

	relOffset += chunkSizePrefix
	*cursor += chunkSizePrefix

	if chunkSize == 0 {
		return nil, ErrCorruptData
	}
	if chunkSize > s.frameSize-relOffset {
		return nil, ErrCorruptData
	}

	chunk := s.frameData[relOffset : relOffset+chunkSize]
	*cursor += chunkSize

	return chunk, nil
}

// locateZoneChunk walks the sequential cursor to the chunk of targetZone.
// The format has no per-zone offset table, so random access is a bounded
// forward walk.
func (s *frameZoneStream) locateZoneChunk(targetZone uint32) ([]byte, error) {
	cursor := s.zoneDataOffset

	var chunk []byte
	for idx := uint32(0); idx <= targetZone; idx++ {
		var err error
		if chunk, err = s.readZoneChunk(&cursor); err != nil {
			return nil, err
		}
	}

	return chunk, nil
}

// zonePixels resolves a chunk to exactly zonePixelBytes of palette indices:
// uncompressed chunks are returned as-is, LZ4 chunks inflate into scratch.
func (s *frameZoneStream) zonePixels(chunk, scratch []byte) ([]byte, error) {
	zoneBytes := s.layout.zonePixelBytes

	switch s.header.CompressionType {
	case CompressionNone:
		if uint64(len(chunk)) != zoneBytes {
			return nil, ErrCorruptData
		}

		return chunk, nil

	case CompressionLZ4:
		if scratch == nil {
			return nil, ErrInternal
		}
		if zoneBytes > math.MaxInt32 || uint64(len(chunk)) > math.MaxInt32 {
			return nil, ErrUnsupportedFormat
		}

		n, err := blockDecompress(chunk, scratch)
		if err != nil || uint64(n) != zoneBytes {
			return nil, ErrCorruptData
		}

		return scratch, nil

	default:
		return nil, ErrUnsupportedFormat
	}
}

// acquireZoneScratch grows the per-handle zone scratch to at least need
// bytes and returns it. Growth is monotonic; the buffer is reused across
// every zone of a decode and across decodes.
func (d *Decoder) acquireZoneScratch(need uint64) []byte {
	if uint64(cap(d.zoneScratch)) < need {
		d.zoneScratch = make([]byte, need)
	}

	return d.zoneScratch[:need]
}

// blitZoneIndices copies a zone's index bytes into dst rows at the zone's
// frame position. dst is addressed with the caller's stride.
func blitZoneIndices(l *zoneLayout, zoneIndex uint32, zonePixels []byte, dst []byte, dstStrideBytes int) {
	zoneX, zoneY := l.zoneOrigin(zoneIndex)

	for row := uint32(0); row < uint32(l.zoneHeight); row++ {
		dstOff := (int(zoneY)+int(row))*dstStrideBytes + int(zoneX)
		srcOff := int(row) * int(l.zoneWidth)
		copy(dst[dstOff:dstOff+int(l.zoneWidth)], zonePixels[srcOff:srcOff+int(l.zoneWidth)])
	}
}

// blitZoneRGB expands a zone's indices through palette into dst. Every
// pixel's index is bounds-checked against the palette.
func blitZoneRGB(l *zoneLayout, zoneIndex uint32, zonePixels []byte, palette []uint16, dst []uint16, dstStridePixels int) error {
	zoneX, zoneY := l.zoneOrigin(zoneIndex)

	for row := uint32(0); row < uint32(l.zoneHeight); row++ {
		dstOff := (int(zoneY)+int(row))*dstStridePixels + int(zoneX)
		srcRow := zonePixels[int(row)*int(l.zoneWidth) : (int(row)+1)*int(l.zoneWidth)]

		for col, idx := range srcRow {
			if int(idx) >= len(palette) {
				return ErrCorruptData
			}
			dst[dstOff+col] = palette[idx]
		}
	}

	return nil
}

// minFrameDst returns the smallest dst length able to hold a full frame at
// the given stride.
func minFrameDst(height uint16, stride, width int) int {
	return (int(height)-1)*stride + width
}

// DecodeFrameIndex8 decodes frame frameIndex as raw palette indices into
// dst, one byte per pixel, rows separated by dstStrideBytes. dst must hold
// (height-1)*stride+width bytes and the stride must be at least the frame
// width.
func (d *Decoder) DecodeFrameIndex8(frameIndex uint32, dst []byte, dstStrideBytes int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if dst == nil {
		return ErrInvalidArgument
	}
	if frameIndex >= d.header.FrameCount {
		return ErrOutOfBounds
	}
	if d.header.ColorFormat != ColorFormatIndexed8 {
		return ErrUnsupportedFormat
	}

	width := int(d.header.Width)
	if dstStrideBytes < width || len(dst) < minFrameDst(d.header.Height, dstStrideBytes, width) {
		return ErrInvalidArgument
	}

	s, err := d.initFrameZoneStream(frameIndex)
	if err != nil {
		return err
	}

	var scratch []byte
	if s.header.CompressionType == CompressionLZ4 {
		scratch = d.acquireZoneScratch(s.layout.zonePixelBytes)
	}

	cursor := s.zoneDataOffset
	for zoneIndex := uint32(0); zoneIndex < s.layout.zoneCount; zoneIndex++ {
		chunk, err := s.readZoneChunk(&cursor)
		if err != nil {
			return err
		}

		zonePixels, err := s.zonePixels(chunk, scratch)
		if err != nil {
			return err
		}

		blitZoneIndices(&s.layout, zoneIndex, zonePixels, dst, dstStrideBytes)
	}

	// The chunk stream must consume the zone-data window exactly.
	if cursor != s.frameDataEnd {
		return ErrCorruptData
	}

	return nil
}

// DecodeFrameIndex8Zone decodes the single zone zoneIndex of frame
// frameIndex into dst as tightly packed palette indices (zoneWidth bytes
// per row, zoneWidth*zoneHeight bytes total).
func (d *Decoder) DecodeFrameIndex8Zone(frameIndex, zoneIndex uint32, dst []byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if dst == nil {
		return ErrInvalidArgument
	}
	if d.header.ColorFormat != ColorFormatIndexed8 {
		return ErrUnsupportedFormat
	}

	s, err := d.initFrameZoneStream(frameIndex)
	if err != nil {
		return err
	}

	if zoneIndex >= s.layout.zoneCount {
		return ErrOutOfBounds
	}
	if uint64(len(dst)) < s.layout.zonePixelBytes {
		return ErrInvalidArgument
	}

	var scratch []byte
	if s.header.CompressionType == CompressionLZ4 {
		scratch = d.acquireZoneScratch(s.layout.zonePixelBytes)
	}

	chunk, err := s.locateZoneChunk(zoneIndex)
	if err != nil {
		return err
	}

	zonePixels, err := s.zonePixels(chunk, scratch)
	if err != nil {
		return err
	}

	// Zone 0 of the layout addresses dst in the zone's own coordinates.
	blitZoneIndices(&s.layout, 0, zonePixels, dst, int(s.layout.zoneWidth))

	return nil
}

// DecodeFrameRgb565 decodes frame frameIndex into dst as RGB565 words in
// the current output encoding, rows separated by dstStridePixels. The frame
// palette (local when present, else global) resolves every pixel; an
// out-of-range index fails with ErrCorruptData.
func (d *Decoder) DecodeFrameRgb565(frameIndex uint32, dst []uint16, dstStridePixels int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if dst == nil {
		return ErrInvalidArgument
	}
	if d.header.ColorFormat != ColorFormatIndexed8 {
		return ErrUnsupportedFormat
	}

	width := int(d.header.Width)
	if dstStridePixels < width || len(dst) < minFrameDst(d.header.Height, dstStridePixels, width) {
		return ErrInvalidArgument
	}

	palette, err := d.FramePalette(frameIndex)
	if err != nil {
		return err
	}

	s, err := d.initFrameZoneStream(frameIndex)
	if err != nil {
		return err
	}

	var scratch []byte
	if s.header.CompressionType == CompressionLZ4 {
		scratch = d.acquireZoneScratch(s.layout.zonePixelBytes)
	}

	cursor := s.zoneDataOffset
	for zoneIndex := uint32(0); zoneIndex < s.layout.zoneCount; zoneIndex++ {
		chunk, err := s.readZoneChunk(&cursor)
		if err != nil {
			return err
		}

		zonePixels, err := s.zonePixels(chunk, scratch)
		if err != nil {
			return err
		}

		if err := blitZoneRGB(&s.layout, zoneIndex, zonePixels, palette, dst, dstStridePixels); err != nil {
			return err
		}
	}

	if cursor != s.frameDataEnd {
		return ErrCorruptData
	}

	return nil
}

// DecodeFrameRgb565Zone decodes the single zone zoneIndex of frame
// frameIndex into dst as tightly packed RGB565 words (zoneWidth pixels per
// row, zoneWidth*zoneHeight words total) in the current output encoding.
func (d *Decoder) DecodeFrameRgb565Zone(frameIndex, zoneIndex uint32, dst []uint16) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if dst == nil {
		return ErrInvalidArgument
	}
	if d.header.ColorFormat != ColorFormatIndexed8 {
		return ErrUnsupportedFormat
	}

	palette, err := d.FramePalette(frameIndex)
	if err != nil {
		return err
	}

	s, err := d.initFrameZoneStream(frameIndex)
	if err != nil {
		return err
	}

	if zoneIndex >= s.layout.zoneCount {
		return ErrOutOfBounds
	}
	if uint64(len(dst)) < s.layout.zonePixelBytes {
		return ErrInvalidArgument
	}

	var scratch []byte
	if s.header.CompressionType == CompressionLZ4 {
		scratch = d.acquireZoneScratch(s.layout.zonePixelBytes)
	}

	chunk, err := s.locateZoneChunk(zoneIndex)
	if err != nil {
		return err
	}

	zonePixels, err := s.zonePixels(chunk, scratch)
	if err != nil {
		return err
	}

	return blitZoneRGB(&s.layout, 0, zonePixels, palette, dst, int(s.layout.zoneWidth))
}
