package zel

import "io"

// Decoder is a handle over one open ZEL file. It is not safe for concurrent
// use: every decode mutates internal scratch buffers and the converted
// palette cache. Independent Decoders over disjoint inputs may run in
// parallel.
//
// A memory-backed Decoder borrows the input slice for its whole lifetime;
// the caller must not mutate or free it before Close.
type Decoder struct {
	data []byte
	src  io.ReaderAt
	size uint64

	closer io.Closer

	header FileHeader

	// frameIndexRaw aliases the input slice for memory-backed handles and
	// is an owned copy for stream-backed ones.
	frameIndexRaw []byte

	globalPaletteRaw      []byte
	globalPaletteCount    uint16
	globalPaletteEncoding ColorEncoding

	globalConverted         []uint16
	globalConvertedEncoding ColorEncoding

	hasOutputOverride bool
	outputEncoding    ColorEncoding

	zoneScratch        []byte
	frameScratch       []byte
	paletteScratch     []uint16
	paletteByteScratch []byte

	closed bool
}

func newDecoder() *Decoder {
	return &Decoder{
		globalPaletteEncoding:   ColorRGB565LE,
		globalConvertedEncoding: encodingUnset,
		outputEncoding:          ColorRGB565LE,
	}
}

// OpenMemory opens a decoder over an in-memory ZEL file. The slice is
// borrowed until Close.
func OpenMemory(data []byte) (*Decoder, error) {
	if data == nil || len(data) < fileHeaderSize {
		return nil, ErrInvalidArgument
	}

	d := newDecoder()
	d.data = data
	d.size = uint64(len(data))

	if err := d.initialize(); err != nil {
		return nil, err
	}

	return d, nil
}

// OpenReaderAt opens a decoder over a random-access source of size bytes,
// e.g. an os.File or an SD-card-backed reader. Every ReadAt must fill the
// requested range exactly; short reads surface as ErrIO. If r implements
// io.Closer it is closed together with the decoder, including when open
// itself fails.
func OpenReaderAt(r io.ReaderAt, size int64) (*Decoder, error) {
	if r == nil || size < fileHeaderSize {
		return nil, ErrInvalidArgument
	}

	d := newDecoder()
	d.src = r
	d.size = uint64(size)
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}

	if err := d.initialize(); err != nil {
		if d.closer != nil {
			_ = d.closer.Close()
		}

		return nil, err
	}

	return d, nil
}

// initialize validates the header chain and caches the global palette and
// frame-index table. Block walking honors the recorded headerSize fields.
func (d *Decoder) initialize() error {
	var raw [fileHeaderSize]byte
	if err := d.readAt(0, raw[:]); err != nil {
		return err
	}

	header := parseFileHeader(raw[:])
	if !validFileHeader(&header) {
		return ErrInvalidMagic
	}

	if uint64(header.HeaderSize) < fileHeaderSize || uint64(header.HeaderSize) > d.size {
		return ErrCorruptData
	}

	d.header = header
	offset := uint64(header.HeaderSize)

	if header.Flags.HasGlobalPalette {
		if !rangeFits(offset, paletteHeaderSize, d.size) {
			return ErrCorruptData
		}

		var phRaw [paletteHeaderSize]byte
		if err := d.readAt(offset, phRaw[:]); err != nil {
			return err
		}

		ph := parsePaletteHeader(phRaw[:])
		if !isValidColorEncoding(ph.ColorEncoding) {
			return ErrUnsupportedFormat
		}
		if ph.EntryCount == 0 || ph.HeaderSize < paletteHeaderSize {
			return ErrCorruptData
		}

		paletteDataOffset := offset + uint64(ph.HeaderSize)
		paletteBytes := uint64(ph.EntryCount) * paletteEntrySize

		if !rangeFits(paletteDataOffset, paletteBytes, d.size) {
			return ErrCorruptData
		}

		if d.data != nil {
			d.globalPaletteRaw = d.data[paletteDataOffset : paletteDataOffset+paletteBytes]
		} else {
			entries := make([]byte, paletteBytes)
			if err := d.readAt(paletteDataOffset, entries); err != nil {
				return err
			}
			d.globalPaletteRaw = entries
		}

		d.globalPaletteCount = ph.EntryCount
		d.globalPaletteEncoding = ColorEncoding(ph.ColorEncoding)

		offset = paletteDataOffset + paletteBytes
	}

	// Random access needs the index table; files without one are refused.
	if !d.header.Flags.HasFrameIndexTable {
		return ErrUnsupportedFormat
	}

	indexBytes := uint64(d.header.FrameCount) * frameIndexEntrySize
	if !rangeFits(offset, indexBytes, d.size) {
		return ErrCorruptData
	}

	if d.data != nil {
		d.frameIndexRaw = d.data[offset : offset+indexBytes]
	} else {
		entries := make([]byte, indexBytes)
		if err := d.readAt(offset, entries); err != nil {
			return err
		}
		d.frameIndexRaw = entries
	}

	return nil
}

// Close releases the decoder's caches and invokes the source's Close when
// it has one. Further calls of the other methods that return an error fail
// with ErrInvalidArgument; the plain header getters keep returning the parsed
// header values.
// Close is idempotent; only the first call reaches the underlying closer.
func (d *Decoder) Close() error {
	if d == nil || d.closed {
		return nil
	}

	d.closed = true

	var err error
	if d.closer != nil {
		err = d.closer.Close()
	}

	d.data = nil
	d.src = nil
	d.closer = nil
	d.frameIndexRaw = nil
	d.globalPaletteRaw = nil
	d.globalConverted = nil
	d.zoneScratch = nil
	d.frameScratch = nil
	d.paletteScratch = nil
	d.paletteByteScratch = nil

	return err
}

// checkOpen guards every operation against use after Close.
func (d *Decoder) checkOpen() error {
	if d == nil || d.closed {
		return ErrInvalidArgument
	}

	return nil
}

func (d *Decoder) Width() uint16  { return d.header.Width }
func (d *Decoder) Height() uint16 { return d.header.Height }

func (d *Decoder) FrameCount() uint32 { return d.header.FrameCount }

// DefaultFrameDurationMs is the file-wide duration inherited by index
// entries that record zero.
func (d *Decoder) DefaultFrameDurationMs() uint16 { return d.header.DefaultFrameDuration }

func (d *Decoder) ZoneWidth() uint16  { return d.header.ZoneWidth }
func (d *Decoder) ZoneHeight() uint16 { return d.header.ZoneHeight }

func (d *Decoder) ColorFormat() ColorFormat { return d.header.ColorFormat }

// SetOutputColorEncoding overrides the RGB565 byte order in which resolved
// palettes are returned. Changing it invalidates the converted-palette
// cache, forcing one rebuild on the next resolve.
func (d *Decoder) SetOutputColorEncoding(encoding ColorEncoding) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if !isValidColorEncoding(uint8(encoding)) {
		return ErrInvalidArgument
	}

	if !d.hasOutputOverride || d.outputEncoding != encoding {
		d.outputEncoding = encoding
		d.hasOutputOverride = true
		d.globalConvertedEncoding = encodingUnset
	}

	return nil
}

// OutputColorEncoding returns the override when set, else the global
// palette's source encoding.
func (d *Decoder) OutputColorEncoding() ColorEncoding {
	if d.hasOutputOverride {
		return d.outputEncoding
	}

	return d.globalPaletteEncoding
}

// HasGlobalPalette reports whether the file carries a global palette block.
func (d *Decoder) HasGlobalPalette() bool {
	return d != nil && d.globalPaletteRaw != nil && d.globalPaletteCount > 0
}

// frameIndexEntry parses index record i from the cached table. The caller
// must have bounds-checked i against FrameCount.
func (d *Decoder) frameIndexEntry(i uint32) FrameIndexEntry {
	off := uint64(i) * frameIndexEntrySize

	return parseFrameIndexEntry(d.frameIndexRaw[off : off+frameIndexEntrySize])
}

// FrameDurationMs returns the display duration of frame i, falling back to
// the file default when the index entry records zero.
func (d *Decoder) FrameDurationMs(frameIndex uint32) (uint16, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	if frameIndex >= d.header.FrameCount {
		return 0, ErrOutOfBounds
	}

	entry := d.frameIndexEntry(frameIndex)
	if entry.FrameDuration != 0 {
		return entry.FrameDuration, nil
	}

	return d.header.DefaultFrameDuration, nil
}

// FrameIsKeyframe reports the keyframe flag of frame i's index entry.
func (d *Decoder) FrameIsKeyframe(frameIndex uint32) (bool, error) {
	if err := d.checkOpen(); err != nil {
		return false, err
	}
	if frameIndex >= d.header.FrameCount {
		return false, ErrOutOfBounds
	}

	return d.frameIndexEntry(frameIndex).Flags.Keyframe, nil
}

// FrameUsesLocalPalette reports whether frame i carries a local palette.
func (d *Decoder) FrameUsesLocalPalette(frameIndex uint32) (bool, error) {
	if err := d.checkOpen(); err != nil {
		return false, err
	}
	if frameIndex >= d.header.FrameCount {
		return false, ErrOutOfBounds
	}

	return d.frameIndexEntry(frameIndex).Flags.HasLocalPalette, nil
}
