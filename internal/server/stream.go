package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// wsPingInterval must stay below wsPongWait.
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the dashboard may be served from another origin during development
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSSE streams every batch as one Server-Sent Events data frame.
//
// Writes carry a deadline so a stalled client cannot block the handler past
// shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	if s.cfg.Feed == nil {
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.cfg.Feed.Subscribe()
	defer s.cfg.Feed.Unsubscribe(ch)

	done := s.observerConnected("sse", r)
	defer done()

	// push headers out so clients see the stream open before the first batch
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case batch, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// handleWebSocket streams every batch as one text frame and pings the client
// to detect dead connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Feed == nil {
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.cfg.Feed.Subscribe()
	defer s.cfg.Feed.Unsubscribe(ch)

	done := s.observerConnected("websocket", r)
	defer done()

	// reader: handles pongs and close frames, discards anything else
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	write := func(messageType int, data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case batch, ok := <-ch:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			data, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return

		case <-r.Context().Done():
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// observerConnected logs a new stream observer and returns the function that
// logs its departure.
func (s *Server) observerConnected(transport string, r *http.Request) func() {
	id := uuid.NewString()
	start := time.Now()
	s.logger.Debug("observer connected",
		"observer_id", id,
		"transport", transport,
		"remote_addr", r.RemoteAddr,
	)
	return func() {
		s.logger.Debug("observer disconnected",
			"observer_id", id,
			"transport", transport,
			"duration", time.Since(start).String(),
		)
	}
}
