package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/attest"
)

// Heartbeat is sent on a fixed interval so the dispatcher can track which
// enclave images are currently live without ever seeing a raw PCR value.
type Heartbeat struct {
	ModuleID  string    `json:"module_id"`
	PCRDigest string    `json:"pcr_digest"`
	SentAt    time.Time `json:"sent_at"`
}

// DispatcherClient maintains a websocket heartbeat connection to the
// operator dispatcher.
type DispatcherClient struct {
	conn     *websocket.Conn
	moduleID string
	pcrs     map[int][]byte
	logger   zerolog.Logger
}

// DialDispatcher connects to the dispatcher's websocket heartbeat endpoint.
func DialDispatcher(ctx context.Context, url, moduleID string, pcrs map[int][]byte, logger zerolog.Logger) (*DispatcherClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("collaborators: dial dispatcher: %w", err)
	}
	return &DispatcherClient{conn: conn, moduleID: moduleID, pcrs: pcrs, logger: logger}, nil
}

// Run sends a heartbeat every interval until ctx is canceled or a write
// fails.
func (c *DispatcherClient) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Warn().Err(err).Msg("dispatcher: heartbeat failed")
				return
			}
		}
	}
}

func (c *DispatcherClient) sendHeartbeat() error {
	hb := Heartbeat{
		ModuleID:  c.moduleID,
		PCRDigest: fmt.Sprintf("%x", attest.PCRDigest(c.pcrs)),
		SentAt:    time.Now(),
	}
	buf, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("collaborators: encode heartbeat: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

// Close releases the underlying websocket connection.
func (c *DispatcherClient) Close() error {
	return c.conn.Close()
}
