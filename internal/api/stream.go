package api

import (
	"bufio"
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// handleSSE streams the caller's results as Server-Sent Events. Each delivered
// results payload becomes one event; idle periods carry keepalive comments.
func (s *Server) handleSSE() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		// Attach before the headers go out: a client that saw 200 is already listening.
		listener := s.svc.Listen(id.OwnerKey)
		defer s.svc.Unlisten(listener)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		slog.Info("Client connected via SSE", "ownerKey", id.OwnerKey, "listenerID", listener.ID())

		keepalive := time.NewTicker(s.cfg.SSEKeepAlive)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				slog.Info("SSE client disconnected", "ownerKey", id.OwnerKey, "listenerID", listener.ID())
				return
			case <-keepalive.C:
				if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
					return
				}
				flusher.Flush()
			case payload, ok := <-listener.C():
				if !ok {
					return
				}
				if err := writeSSEData(w, payload); err != nil {
					slog.Warn("Failed to write SSE event", "ownerKey", id.OwnerKey, "error", err)
					return
				}
				flusher.Flush()
			}
		}
	}
}

// writeSSEData writes payload as one event. SSE treats CR, LF and CRLF alike
// as line ends, so each becomes a data line break that clients join back
// with "\n". CR bytes themselves cannot cross an event stream; the WebSocket
// route carries payloads unchanged.
func writeSSEData(w http.ResponseWriter, payload []byte) error {
	var buf bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(nil, len(payload)+bufio.MaxScanTokenSize)
	sc.Split(scanSSELines)
	for sc.Scan() {
		buf.WriteString("data: ")
		buf.Write(sc.Bytes())
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(payload) == 0 || payload[len(payload)-1] == '\n' || payload[len(payload)-1] == '\r' {
		buf.WriteString("data: \n") // keep the trailing empty line
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// scanSSELines is a bufio.SplitFunc ending lines at CRLF, CR or LF.
func scanSSELines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// CR: swallow a following LF, which may not have arrived yet.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.cfg.AllowedOrigin
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowed == "*" || origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && (origin == allowed || u.Host == r.Host)
		},
	}
}

// handleWS is the WebSocket variant of handleSSE. Each results payload is sent
// as one text message with its bytes unchanged.
func (s *Server) handleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		// Attach before the handshake completes, as in handleSSE.
		listener := s.svc.Listen(id.OwnerKey)
		defer s.svc.Unlisten(listener)

		conn, err := s.upgrader().Upgrade(w, r, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		slog.Info("Client connected via WebSocket", "ownerKey", id.OwnerKey, "remoteAddr", conn.RemoteAddr())

		// Reader: only pongs and close frames are expected; it ends when the client goes away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
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

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				slog.Info("WebSocket client disconnected", "ownerKey", id.OwnerKey)
				return
			case <-r.Context().Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case payload, ok := <-listener.C():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					slog.Warn("Failed to write to websocket", "ownerKey", id.OwnerKey, "error", err)
					return
				}
			}
		}
	}
}
