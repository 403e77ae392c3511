package zel

// TotalDurationMs sums the display durations of every frame, each falling
// back to the file default when its index entry records zero. Summation is
// 32-bit unsigned; realistic files do not overflow it.
func (d *Decoder) TotalDurationMs() (uint32, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}

	var total uint32
	for i := uint32(0); i < d.header.FrameCount; i++ {
		duration, err := d.FrameDurationMs(i)
		if err != nil {
			return 0, err
		}

		total += uint32(duration)
	}

	return total, nil
}

// FindFrameByTimeMs maps an animation time to the frame shown at that
// instant and the frame's start time, wrapping timeMs modulo the total
// duration. Files whose total duration is zero fail with ErrCorruptData.
func (d *Decoder) FindFrameByTimeMs(timeMs uint32) (frameIndex, frameStartMs uint32, err error) {
	if err := d.checkOpen(); err != nil {
		return 0, 0, err
	}

	totalDuration, err := d.TotalDurationMs()
	if err != nil {
		return 0, 0, err
	}
	if totalDuration == 0 {
		return 0, 0, ErrCorruptData
	}

	t := timeMs % totalDuration

	var accum uint32
	for i := uint32(0); i < d.header.FrameCount; i++ {
		duration, err := d.FrameDurationMs(i)
		if err != nil {
			return 0, 0, err
		}

		next := accum + uint32(duration)
		if t < next {
			return i, accum, nil
		}

		accum = next
	}

	// Unreachable: t < totalDuration and the durations sum to exactly
	// totalDuration, so the loop always matches. Kept for parity with the
	// reference decoder; not part of the contract.
	return d.header.FrameCount - 1, totalDuration - 1, nil
}
