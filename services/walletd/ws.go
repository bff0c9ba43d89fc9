package walletd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"walletledger/core/types"
)

const wsWriteTimeout = 10 * time.Second

// accountFrame is one message on the live account stream.
type accountFrame struct {
	Version uint64          `json:"version"`
	Account accountResponse `json:"account"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	accountID := identity(r).Subject
	acc, err := s.ledger.Account(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cors.AllowedOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamAccount(ctx, conn, accountID, acc); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("account stream failed", slog.String("account", accountID), slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// streamAccount pushes the current snapshot, then every committed version of
// the account document. Versions at or below the last one sent are skipped
// so reordered deliveries never move a client backwards.
func (s *Server) streamAccount(ctx context.Context, conn *websocket.Conn, accountID string, initial *types.Account) error {
	store := s.ledger.Store()
	events, cancel := store.Subscribe(ctx, accountPath(accountID))
	metrics := s.ledger.metrics
	metrics.SetSubscribers(store.Subscribers())
	defer func() {
		cancel()
		metrics.SetSubscribers(store.Subscribers())
	}()

	// Re-read after subscribing so no commit falls between the snapshot and
	// the first event.
	var last uint64
	snapshot := initial
	if doc, err := store.Get(ctx, accountPath(accountID)); err == nil {
		if acc, err := types.DecodeAccount(doc.Value); err == nil {
			snapshot = acc
			last = doc.Version
		}
	}
	if err := writeAccountFrame(ctx, conn, last, snapshot); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				// Dropped as a slow subscriber; the client reconnects.
				return conn.Close(websocket.StatusTryAgainLater, "stream lagging")
			}
			if evt.Path != accountPath(accountID) || evt.Deleted || evt.Version <= last {
				continue
			}
			acc, err := types.DecodeAccount(evt.Value)
			if err != nil {
				return err
			}
			last = evt.Version
			if err := writeAccountFrame(ctx, conn, evt.Version, acc); err != nil {
				return err
			}
		}
	}
}

func writeAccountFrame(ctx context.Context, conn *websocket.Conn, version uint64, acc *types.Account) error {
	data, err := json.Marshal(accountFrame{Version: version, Account: newAccountResponse(acc)})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
