package zel

import "encoding/binary"

// swapRGB565 exchanges the two bytes of an RGB565 word. Applying it twice
// is the identity.
func swapRGB565(v uint16) uint16 {
	return v<<8 | v>>8
}

// selectOutputEncoding returns the caller override when one is set, else
// the palette's own source encoding.
func (d *Decoder) selectOutputEncoding(sourceEncoding ColorEncoding) ColorEncoding {
	if d.hasOutputOverride {
		return d.outputEncoding
	}

	return sourceEncoding
}

// decodePaletteWords fills dst with the RGB565 words stored in raw,
// byte-swapping each entry when the source and desired encodings differ.
func decodePaletteWords(raw []byte, dst []uint16, sourceEncoding, desired ColorEncoding) {
	for i := range dst {
		v := binary.LittleEndian.Uint16(raw[i*paletteEntrySize:])
		if sourceEncoding != desired {
			v = swapRGB565(v)
		}
		dst[i] = v
	}
}

// acquirePaletteScratch returns the local-palette scratch grown to at least
// entries words. Growth is monotonic; the buffer is reused across calls.
func (d *Decoder) acquirePaletteScratch(entries int) []uint16 {
	if cap(d.paletteScratch) < entries {
		d.paletteScratch = make([]uint16, entries)
	}

	return d.paletteScratch[:entries]
}

func (d *Decoder) acquirePaletteByteScratch(n int) []byte {
	if cap(d.paletteByteScratch) < n {
		d.paletteByteScratch = make([]byte, n)
	}

	return d.paletteByteScratch[:n]
}

// resolveGlobalPalette returns the global palette in the requested output
// encoding. The converted cache is rebuilt only when its encoding stamp
// does not match; the slice aliases that cache and is invalidated by the
// next encoding change.
func (d *Decoder) resolveGlobalPalette() ([]uint16, error) {
	if d.globalPaletteRaw == nil {
		return nil, ErrOutOfBounds
	}

	desired := d.selectOutputEncoding(d.globalPaletteEncoding)

	if d.globalConvertedEncoding != desired {
		if cap(d.globalConverted) < int(d.globalPaletteCount) {
			d.globalConverted = make([]uint16, d.globalPaletteCount)
		}
		d.globalConverted = d.globalConverted[:d.globalPaletteCount]

		decodePaletteWords(d.globalPaletteRaw, d.globalConverted, d.globalPaletteEncoding, desired)
		d.globalConvertedEncoding = desired
	}

	return d.globalConverted, nil
}

// resolveLocalPalette converts a frame-local palette into the palette
// scratch. It never touches the global converted cache.
func (d *Decoder) resolveLocalPalette(ph *PaletteHeader, raw []byte) ([]uint16, error) {
	sourceEncoding := ColorEncoding(ph.ColorEncoding)
	desired := d.selectOutputEncoding(sourceEncoding)

	entries := d.acquirePaletteScratch(int(ph.EntryCount))
	decodePaletteWords(raw, entries, sourceEncoding, desired)

	return entries, nil
}

// GlobalPalette returns the global palette entries in the current output
// encoding. The slice aliases an internal cache whose contents are
// invalidated by the next SetOutputColorEncoding call; it must not be
// mutated. Files without a global palette fail with ErrOutOfBounds.
func (d *Decoder) GlobalPalette() ([]uint16, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	return d.resolveGlobalPalette()
}

// FramePalette returns the palette frame i decodes against: its local
// palette when the index entry flags one, else the global palette. Local
// palettes resolve through a per-handle scratch that the next FramePalette
// call reuses.
func (d *Decoder) FramePalette(frameIndex uint32) ([]uint16, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if frameIndex >= d.header.FrameCount {
		return nil, ErrOutOfBounds
	}

	entry := d.frameIndexEntry(frameIndex)
	if !entry.Flags.HasLocalPalette {
		return d.resolveGlobalPalette()
	}

	frameOffset := uint64(entry.FrameOffset)
	frameSize := uint64(entry.FrameSize)

	if frameSize == 0 {
		return nil, ErrCorruptData
	}
	if !rangeFits(frameOffset, frameSize, d.size) {
		return nil, ErrCorruptData
	}

	frameEnd := frameOffset + frameSize

	if !rangeFits(frameOffset, frameHeaderSize, d.size) {
		return nil, ErrCorruptData
	}

	var fhRaw [frameHeaderSize]byte
	if err := d.readAt(frameOffset, fhRaw[:]); err != nil {
		return nil, err
	}

	fh := parseFrameHeader(fhRaw[:])
	if fh.LocalPaletteEntryCount == 0 {
		return nil, ErrCorruptData
	}

	phOffset := frameOffset + uint64(fh.HeaderSize)
	if phOffset > frameEnd || !rangeFits(phOffset, paletteHeaderSize, d.size) ||
		paletteHeaderSize > frameEnd-phOffset {
		return nil, ErrCorruptData
	}

	var phRaw [paletteHeaderSize]byte
	if err := d.readAt(phOffset, phRaw[:]); err != nil {
		return nil, err
	}

	ph := parsePaletteHeader(phRaw[:])
	if ph.HeaderSize < paletteHeaderSize {
		return nil, ErrCorruptData
	}
	if !isValidColorEncoding(ph.ColorEncoding) {
		return nil, ErrUnsupportedFormat
	}
	if ph.EntryCount == 0 {
		return nil, ErrCorruptData
	}

	paletteDataOffset := phOffset + uint64(ph.HeaderSize)
	paletteBytes := uint64(ph.EntryCount) * paletteEntrySize

	if !rangeFits(paletteDataOffset, paletteBytes, d.size) {
		return nil, ErrCorruptData
	}
	if paletteDataOffset > frameEnd || paletteBytes > frameEnd-paletteDataOffset {
		return nil, ErrCorruptData
	}

	var raw []byte
	if d.data != nil {
		raw = d.data[paletteDataOffset : paletteDataOffset+paletteBytes]
	} else {
		raw = d.acquirePaletteByteScratch(int(paletteBytes))
		if err := d.readAt(paletteDataOffset, raw); err != nil {
			return nil, err
		}
	}

	return d.resolveLocalPalette(&ph, raw)
}
