// Package handler serves the animation catalog and the websocket frame
// stream consumed by the browser client.
package handler

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kulaginds/zel-html5/internal/anim"
	"github.com/kulaginds/zel-html5/internal/codec"
	"github.com/kulaginds/zel-html5/internal/logging"
	"github.com/kulaginds/zel-html5/zel"
)

const (
	webSocketReadBufferSize  = 4096
	webSocketWriteBufferSize = 8192 * 2

	// frameHeaderBytes prefixes every binary frame message:
	// u32 frameIndex, u16 width, u16 height, u32 frameStartMs.
	frameHeaderBytes = 12
)

// Handler holds the shared animation store and security settings.
type Handler struct {
	store          *anim.Store
	allowedOrigins []string
	maxFrameRate   int
}

func New(store *anim.Store, allowedOrigins []string, maxFrameRate int) *Handler {
	if maxFrameRate <= 0 {
		maxFrameRate = 60
	}

	return &Handler{
		store:          store,
		allowedOrigins: allowedOrigins,
		maxFrameRate:   maxFrameRate,
	}
}

// Animations returns the catalog as JSON.
func (h *Handler) Animations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(h.store.List()); err != nil {
		logging.Error("encode catalog: %v", err)
	}
}

// Stream upgrades the connection and pushes decoded RGBA frames paced by
// the animation's timeline. Control messages from the client ("pause",
// "resume", "seek:<ms>") adjust playback.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing animation name", http.StatusBadRequest)
		return
	}

	dec, err := h.store.Open(name)
	if err != nil {
		http.Error(w, "unknown animation", http.StatusNotFound)
		return
	}
	defer dec.Close()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return h.isAllowedOrigin(r.Header.Get("Origin"), r.Host)
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("upgrade websocket: %v", err)
		return
	}

	defer func() {
		if err := wsConn.Close(); err != nil {
			logging.Debug("closing websocket: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := make(chan controlMsg, 4)
	go readControl(ctx, wsConn, ctrl, cancel)

	if err := h.streamFrames(ctx, wsConn, dec, name, ctrl); err != nil {
		logging.Debug("stream %s: %v", name, err)
	}
}

func (h *Handler) isAllowedOrigin(origin, host string) bool {
	if origin == "" {
		return true
	}

	if u, err := url.Parse(origin); err == nil && u.Host == host {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}

	return false
}

type controlMsg struct {
	kind   string
	seekMs uint32
}

// readControl pumps client text messages into ctrl until the connection
// drops, then cancels the stream.
func readControl(ctx context.Context, wsConn *websocket.Conn, ctrl chan<- controlMsg, cancel context.CancelFunc) {
	defer cancel()

	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg := strings.TrimSpace(string(data))
		var cm controlMsg

		switch {
		case msg == "pause", msg == "resume":
			cm.kind = msg
		case strings.HasPrefix(msg, "seek:"):
			ms, err := strconv.ParseUint(strings.TrimPrefix(msg, "seek:"), 10, 32)
			if err != nil {
				continue
			}
			cm.kind = "seek"
			cm.seekMs = uint32(ms)
		default:
			continue
		}

		select {
		case ctrl <- cm:
		case <-ctx.Done():
			return
		}
	}
}

type streamMeta struct {
	Name            string `json:"name"`
	Width           uint16 `json:"width"`
	Height          uint16 `json:"height"`
	FrameCount      uint32 `json:"frameCount"`
	TotalDurationMs uint32 `json:"totalDurationMs"`
}

func (h *Handler) streamFrames(ctx context.Context, wsConn *websocket.Conn, dec *zel.Decoder, name string, ctrl <-chan controlMsg) error {
	width := int(dec.Width())
	height := int(dec.Height())

	total, err := dec.TotalDurationMs()
	if err != nil {
		return fmt.Errorf("total duration: %w", err)
	}

	meta := streamMeta{
		Name:            name,
		Width:           dec.Width(),
		Height:          dec.Height(),
		FrameCount:      dec.FrameCount(),
		TotalDurationMs: total,
	}
	if err := wsConn.WriteJSON(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	// One message buffer reused for every frame.
	msg := make([]byte, frameHeaderBytes+width*height*4)
	rgb := make([]uint16, width*height)

	minInterval := time.Second / time.Duration(h.maxFrameRate)

	var (
		frame   uint32
		startMs uint32
		paused  bool
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cm := <-ctrl:
			switch cm.kind {
			case "pause":
				paused = true
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case "resume":
				if paused {
					paused = false
					timer.Reset(0)
				}
			case "seek":
				if total > 0 {
					if f, start, err := dec.FindFrameByTimeMs(cm.seekMs); err == nil {
						frame = f
						startMs = start
						if !paused {
							timer.Reset(0)
						}
					}
				}
			}

		case <-timer.C:
			if err := dec.DecodeFrameRgb565(frame, rgb, width); err != nil {
				return fmt.Errorf("decode frame %d: %s: %w", frame, zel.ResultToString(err), err)
			}

			binary.LittleEndian.PutUint32(msg[0:], frame)
			binary.LittleEndian.PutUint16(msg[4:], dec.Width())
			binary.LittleEndian.PutUint16(msg[6:], dec.Height())
			binary.LittleEndian.PutUint32(msg[8:], startMs)
			codec.RGB565ToRGBA(rgb, msg[frameHeaderBytes:], dec.OutputColorEncoding())

			if err := wsConn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}

			duration, err := dec.FrameDurationMs(frame)
			if err != nil {
				return fmt.Errorf("frame duration: %w", err)
			}

			interval := time.Duration(duration) * time.Millisecond
			if interval < minInterval {
				interval = minInterval
			}

			startMs += uint32(duration)
			frame++
			if frame >= dec.FrameCount() {
				frame = 0
				startMs = 0
			}

			timer.Reset(interval)
		}
	}
}
