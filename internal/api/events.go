package api

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
	eventPongTimeout  = 2 * eventPingInterval
	eventBuffer       = 256
)

// handleEvents streams bus events to one WebSocket client. Only this
// goroutine writes to the connection; a reader goroutine drains control
// frames and notices disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	var since int64
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(c, badRequest("since must be an event sequence number", err))
			return
		}
		since = parsed
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	logger := logging.WithContext(c.Request.Context(), s.logger)
	logger.Debug("event stream connected", logging.String("remote", c.ClientIP()))

	bus := s.jobs.Bus()
	last := bus.Latest()
	events, unsubscribe := bus.Subscribe(eventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if c.Query("since") != "" {
		last = since
		for _, ev := range bus.Since(since) {
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			last = ev.Seq
		}
	}
	cursor := bus.CursorAt(last)

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, next := range cursor.Next(ev) {
				if err := writeEvent(conn, next); err != nil {
					logger.Debug("event stream write failed", logging.Error(err))
					return
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev jobs.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// checkOrigin accepts non-browser clients, the configured origins, and any
// loopback origin when none are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		return slices.Contains(s.cfg.Server.AllowedOrigins, origin)
	}
	return isLoopbackOrigin(origin)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1", "wails.localhost":
		return true
	}
	return false
}
