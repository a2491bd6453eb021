package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// spectrumFrame is one tick on /ws/spectrum.
type spectrumFrame struct {
	Seq   uint64 `json:"seq"`
	Style string `json:"style"`
	Bins  []int  `json:"bins"`
}

// handleSpectrum streams every rendered tick to the client until it
// disconnects. Slow clients skip ticks.
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.session.Renderer().Subscribe(8)
	defer unsubscribe()
	s.logger.Debug("spectrum client connected", "remote", r.RemoteAddr)

	// Reads only detect disconnects and answer pings
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			s.logger.Debug("spectrum client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			// []uint8 would marshal as base64
			bins := make([]int, len(ev.Data))
			for i, v := range ev.Data {
				bins[i] = int(v)
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(spectrumFrame{Seq: ev.Seq, Style: ev.Style.String(), Bins: bins}); err != nil {
				s.logger.Debug("spectrum write failed", "err", err)
				return
			}
		}
	}
}
