package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

const (
	streamBuffer     = 64
	streamWriteLimit = 5 * time.Second
)

// streamEvent is one frame pushed to a stream client.
type streamEvent struct {
	Type    string               `json:"type"` // "block" or "address"
	Block   *domain.BlockSummary `json:"block,omitempty"`
	Address *domain.AddressEvent `json:"address,omitempty"`
}

// streamHandler upgrades to a websocket and pushes live events. Every client
// receives new block headers; ?addresses=0x..,0x.. additionally watches the
// given addresses. A client that cannot keep up loses events rather than
// blocking the delivery path.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "gateway: websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	events := make(chan streamEvent, streamBuffer)
	push := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
		}
	}

	blockHandle := s.ledger.SubscribeBlocks(func(b domain.BlockSummary) {
		push(streamEvent{Type: "block", Block: &b})
	})
	defer s.ledger.Unsubscribe(blockHandle)

	var addrHandles []domain.SubHandle
	defer func() {
		for _, h := range addrHandles {
			s.ledger.Unsubscribe(h)
		}
	}()
	for _, addr := range splitAddresses(r.URL.Query().Get("addresses")) {
		h, err := s.ledger.SubscribeAddress(addr, func(ev domain.AddressEvent) {
			push(streamEvent{Type: "address", Address: &ev})
		})
		if err != nil {
			conn.Close(websocket.StatusPolicyViolation, "invalid address: "+addr)
			return
		}
		addrHandles = append(addrHandles, h)
	}

	// The client sends nothing after the handshake; CloseRead keeps control
	// frames flowing and cancels when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			wctx, cancel := context.WithTimeout(ctx, streamWriteLimit)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
