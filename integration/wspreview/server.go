// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wspreview streams pipeline output to browsers over websocket.
//
// A Server implements pix2pix.Material. Every bound texture is encoded as
// PNG and broadcast to connected clients as a CBOR Frame message. Clients
// that connect later receive the most recent frame first.
//
//	preview := wspreview.New()
//	go preview.ListenAndServe(ctx, ":8090")
//
//	p, _ := pix2pix.New(cfg, cam, engine, pix2pix.Materials{mtl, preview})
package wspreview

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/gogpu/pix2pix"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// Frame is the message sent to clients for every bound texture.
type Frame struct {
	Seq      uint64 `cbor:"seq"`
	Property string `cbor:"property"`
	Width    int    `cbor:"width"`
	Height   int    `cbor:"height"`
	Format   string `cbor:"format"`
	Data     []byte `cbor:"data"`
}

// Server broadcasts frames to websocket clients.
type Server struct {
	upgrader websocket.Upgrader
	frames   chan Frame

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	last    *Frame

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// New creates a server. Call Run or ListenAndServe to start broadcasting.
func New() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		frames:  make(chan Frame, 1),
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// SetTexture implements pix2pix.Material. It never blocks: when the
// broadcaster has not picked up the previous frame yet, that frame is
// replaced.
func (s *Server) SetTexture(name string, tex *pix2pix.Texture) error {
	if tex == nil || tex.Released() {
		return pix2pix.ErrTextureReleased
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, tex.RGBA()); err != nil {
		return err
	}
	f := Frame{
		Seq:      s.seq.Add(1),
		Property: name,
		Width:    tex.Width(),
		Height:   tex.Height(),
		Format:   "png",
		Data:     buf.Bytes(),
	}
	for {
		select {
		case s.frames <- f:
			return nil
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many frames were replaced before being broadcast.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Handler returns the HTTP handler serving /ws, /frame.png and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/frame.png", s.handleFrame)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves Handler on addr and broadcasts until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.Run(ctx)

	pix2pix.Logger().Info("wspreview: listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run broadcasts frames until ctx is done, then disconnects all clients.
func (s *Server) Run(ctx context.Context) {
	defer s.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.frames:
			s.broadcast(f)
		}
	}
}

func (s *Server) broadcast(f Frame) {
	payload, err := cbor.Marshal(f)
	if err != nil {
		pix2pix.Logger().Warn("wspreview: encode frame", "err", err)
		return
	}

	var stale []*websocket.Conn
	s.mu.Lock()
	s.last = &f
	for conn, writeMu := range s.clients {
		if err := writeMessage(conn, writeMu, websocket.BinaryMessage, payload); err != nil {
			stale = append(stale, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range stale {
		s.removeClient(conn)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = writeMu
	if s.last != nil {
		if payload, err := cbor.Marshal(s.last); err == nil {
			_ = writeMessage(conn, writeMu, websocket.BinaryMessage, payload)
		}
	}
	s.mu.Unlock()
	pix2pix.Logger().Debug("wspreview: client connected", "remote", r.RemoteAddr)

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			// Clients only send control frames; reading drives the pong handler.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(last.Data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
}

func writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
