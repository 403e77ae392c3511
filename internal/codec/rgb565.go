// Package codec converts decoded animation pixels into formats the browser
// canvas can consume.
package codec

import "github.com/kulaginds/zel-html5/zel"

// RGB565ToRGBA converts RGB565 words to 32-bit RGBA. The encoding names the
// byte order of the words in src; canvas ImageData wants RGBA bytes.
func RGB565ToRGBA(src []uint16, dst []byte, encoding zel.ColorEncoding) {
	srcIdx := 0
	dstIdx := 0

	for srcIdx < len(src) && dstIdx+3 < len(dst) {
		pel := src[srcIdx]
		if encoding == zel.ColorRGB565BE {
			pel = pel<<8 | pel>>8
		}

		r := (pel & 0xF800) >> 11
		g := (pel & 0x07E0) >> 5
		b := pel & 0x001F

		// Expand 5/6/5 to 8/8/8
		r = (r << 3) | (r >> 2)
		g = (g << 2) | (g >> 4)
		b = (b << 3) | (b >> 2)

		dst[dstIdx] = byte(r)
		dst[dstIdx+1] = byte(g)
		dst[dstIdx+2] = byte(b)
		dst[dstIdx+3] = 255

		srcIdx++
		dstIdx += 4
	}
}

// Index8ToRGBA expands palette indices straight to RGBA using a resolved
// RGB565 palette. Out-of-range indices render transparent black rather than
// failing; the decoder has already validated pixels on the RGB565 path.
func Index8ToRGBA(src []byte, palette []uint16, dst []byte, encoding zel.ColorEncoding) {
	srcIdx := 0
	dstIdx := 0

	for srcIdx < len(src) && dstIdx+3 < len(dst) {
		idx := src[srcIdx]
		if int(idx) < len(palette) {
			pel := palette[idx]
			if encoding == zel.ColorRGB565BE {
				pel = pel<<8 | pel>>8
			}

			r := (pel & 0xF800) >> 11
			g := (pel & 0x07E0) >> 5
			b := pel & 0x001F

			dst[dstIdx] = byte((r << 3) | (r >> 2))
			dst[dstIdx+1] = byte((g << 2) | (g >> 4))
			dst[dstIdx+2] = byte((b << 3) | (b >> 2))
			dst[dstIdx+3] = 255
		} else {
			dst[dstIdx] = 0
			dst[dstIdx+1] = 0
			dst[dstIdx+2] = 0
			dst[dstIdx+3] = 0
		}

		srcIdx++
		dstIdx += 4
	}
}
