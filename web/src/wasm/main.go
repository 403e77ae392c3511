//go:build js && wasm

// Package main provides WebAssembly bindings for client-side ZEL decoding,
// for pages that want to decode downloaded .zel files without a frame
// stream. This file contains only JavaScript glue code - the decoder lives
// in the zel package.
package main

import (
	"syscall/js"

	"github.com/kulaginds/zel-html5/internal/codec"
	"github.com/kulaginds/zel-html5/zel"
)

var (
	decoders  = map[int]*zel.Decoder{}
	nextID    = 1
	rgbBuffer []uint16
)

// jsOpen opens a decoder over a Uint8Array and returns a handle id, or -1
// on failure.
func jsOpen(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return -1
	}

	srcArray := args[0]
	data := make([]byte, srcArray.Get("length").Int())
	js.CopyBytesToGo(data, srcArray)

	d, err := zel.OpenMemory(data)
	if err != nil {
		return -1
	}

	id := nextID
	nextID++
	decoders[id] = d

	return id
}

// jsClose releases the decoder behind a handle id.
func jsClose(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}

	id := args[0].Int()
	d, ok := decoders[id]
	if !ok {
		return false
	}

	delete(decoders, id)

	return d.Close() == nil
}

// jsInfo returns {width, height, frameCount, totalDurationMs} for a handle.
func jsInfo(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.Null()
	}

	d, ok := decoders[args[0].Int()]
	if !ok {
		return js.Null()
	}

	total, err := d.TotalDurationMs()
	if err != nil {
		return js.Null()
	}

	return map[string]interface{}{
		"width":           int(d.Width()),
		"height":          int(d.Height()),
		"frameCount":      int(d.FrameCount()),
		"totalDurationMs": int(total),
	}
}

// jsFrameDuration returns the duration of one frame in milliseconds.
func jsFrameDuration(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return -1
	}

	d, ok := decoders[args[0].Int()]
	if !ok {
		return -1
	}

	duration, err := d.FrameDurationMs(uint32(args[1].Int()))
	if err != nil {
		return -1
	}

	return int(duration)
}

// jsDecodeRGBA decodes one frame into a Uint8ClampedArray of RGBA bytes.
func jsDecodeRGBA(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return false
	}

	d, ok := decoders[args[0].Int()]
	if !ok {
		return false
	}

	frameIndex := uint32(args[1].Int())
	dstArray := args[2]

	width := int(d.Width())
	height := int(d.Height())

	if cap(rgbBuffer) < width*height {
		rgbBuffer = make([]uint16, width*height)
	}
	rgb := rgbBuffer[:width*height]

	if err := d.DecodeFrameRgb565(frameIndex, rgb, width); err != nil {
		return false
	}

	rgba := make([]byte, width*height*4)
	codec.RGB565ToRGBA(rgb, rgba, d.OutputColorEncoding())
	js.CopyBytesToJS(dstArray, rgba)

	return true
}

func main() {
	js.Global().Set("zelOpen", js.FuncOf(jsOpen))
	js.Global().Set("zelClose", js.FuncOf(jsClose))
	js.Global().Set("zelInfo", js.FuncOf(jsInfo))
	js.Global().Set("zelFrameDuration", js.FuncOf(jsFrameDuration))
	js.Global().Set("zelDecodeRGBA", js.FuncOf(jsDecodeRGBA))

	// Keep the runtime alive for the page.
	select {}
}
