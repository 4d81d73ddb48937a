package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"codeshift/internal/logging"
	"codeshift/internal/translate"
)

const (
	translateWSWriteWait = 10 * time.Second
	translateWSPongWait  = 60 * time.Second
	translateWSPingEvery = (translateWSPongWait * 9) / 10
	// close reasons must fit in a control frame
	maxCloseReason = 120
)

var translateWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsSink sends every write as one text message and closes the connection
// normally on Close.
type wsSink struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsSink) Write(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(translateWSWriteWait)); err != nil {
		return 0, err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSink) Close() error {
	return s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *wsSink) closeWith(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, closeReason(reason))
		err = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(translateWSWriteWait))
	})
	return err
}

// closeReason trims reason to maxCloseReason bytes of valid UTF-8.
func closeReason(reason string) string {
	reason = strings.ToValidUTF8(reason, "?")
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// ServeWS runs the same translation over a WebSocket. Failures before the
// first byte are answered as plain HTTP, exactly like ServeHTTP.
func (h *TranslateHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	plan := h.prepare(w, r)
	if plan == nil {
		return
	}
	log := h.log.With(logging.RunID(plan.RunID))

	header := http.Header{}
	header.Set("X-Run-Id", plan.RunID)
	conn, err := translateWSUpgrader.Upgrade(w, r, header)
	if err != nil {
		log.WarnContext(r.Context(), "websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	// The request context is not canceled once the connection is hijacked,
	// so the reader below cancels the run when the peer goes away.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(translateWSPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(translateWSPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(translateWSPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(translateWSWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	sink := &wsSink{conn: conn}
	out := translate.NewStreamer(sink)
	if err := h.runner.Run(ctx, plan, out); err != nil {
		log.ErrorContext(ctx, "run failed", logging.Error(err))
		_ = sink.closeWith(websocket.CloseInternalServerErr, err.Error())
	}
}
