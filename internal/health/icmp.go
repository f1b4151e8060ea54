package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/recovery"
)

// Subprotocol is the WebSocket subprotocol spoken on /ping/ws.
const Subprotocol = "muti-ping"

// echoMessage is a client echo request on a WebSocket session.
type echoMessage struct {
	Type     string `json:"type"`
	Sequence int    `json:"sequence"`
}

// handlePingWebSocket handles WebSocket ping sessions.
// GET /ping/ws
//
// The client opens with {"type":"init","dest":...} and may override
// timeout, size, ttl and df. Each {"type":"echo","sequence":n} is answered
// with a reply or error message carrying the same sequence.
func (s *Server) handlePingWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		http.Error(w, "ping not available", http.StatusServiceUnavailable)
		return
	}

	// Disable write deadline for long-lived WebSocket connections
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", logging.KeyError, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if s.metrics != nil {
		s.metrics.RecordHTTPProbe("ws")
		s.metrics.RecordWSSessionOpen()
		defer s.metrics.RecordWSSessionClose()
	}
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	ctx := r.Context()

	// Read initial message with the destination
	_, initData, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "failed to read init message")
		return
	}

	var initMsg map[string]interface{}
	if err := json.Unmarshal(initData, &initMsg); err != nil {
		conn.Close(websocket.StatusProtocolError, "invalid init message")
		return
	}
	if initMsg["type"] != "init" {
		conn.Close(websocket.StatusProtocolError, "expected init message")
		return
	}

	get := func(key string) string {
		v, ok := initMsg[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}

	p, err := s.probeParams(get)
	if err == nil {
		p.addr, err = resolve(ctx, get("dest"))
	}
	if err != nil {
		sendInitError(ctx, conn, err.Error())
		conn.Close(websocket.StatusPolicyViolation, "invalid init message")
		return
	}

	logger := s.logger.With(
		logging.KeyAddress, p.addr.String(),
		logging.KeyRemoteAddr, r.RemoteAddr)
	logger.Debug("ping session opened",
		logging.KeyTTL, p.opts.TTL,
		logging.KeySize, p.size)

	ack, _ := json.Marshal(map[string]interface{}{
		"type":    "init_ack",
		"success": true,
		"address": p.addr.String(),
	})
	if err := conn.Write(ctx, websocket.MessageText, ack); err != nil {
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.WSRate), s.cfg.WSBurst)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.Read(sessionCtx)
		if err != nil {
			logger.Debug("ping session closed", logging.KeyError, err)
			return
		}

		var msg echoMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "echo" {
			continue
		}

		if err := limiter.Wait(sessionCtx); err != nil {
			return
		}

		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			defer recovery.RecoverWithLog(logger, "ws echo")

			var resp interface{}
			reply, err := s.echo(p)
			if err != nil {
				logger.Debug("ws echo failed",
					logging.KeySequence, seq,
					logging.KeyError, err)
				pe := newProbeError(err)
				pe.Type = "error"
				pe.Sequence = &seq
				resp = pe
			} else {
				resp = probeReply{
					Type:     "reply",
					Sequence: &seq,
					Address:  reply.Address.String(),
					RTT:      reply.RTT,
					TTL:      p.opts.TTL,
					Size:     p.size,
				}
			}

			out, _ := json.Marshal(resp)
			if err := conn.Write(sessionCtx, websocket.MessageText, out); err != nil {
				cancel()
			}
		}(msg.Sequence)
	}
}

// sendInitError sends a failed init acknowledgement on the WebSocket.
func sendInitError(ctx context.Context, conn *websocket.Conn, msg string) {
	resp := map[string]interface{}{
		"type":    "init_ack",
		"success": false,
		"error":   msg,
	}
	respData, _ := json.Marshal(resp)
	conn.Write(ctx, websocket.MessageText, respData)
}
