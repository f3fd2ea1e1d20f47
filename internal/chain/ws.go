package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ExecutionNotification is a notification streamed over a WebSocket
// notification_from_execution subscription.
type ExecutionNotification struct {
	Container string    `json:"container"`
	Contract  string    `json:"contract"`
	EventName string    `json:"eventname"`
	State     StackItem `json:"state"`
}

type wsEvent struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *int              `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  []json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *RPCError         `json:"error,omitempty"`
}

// WSClient streams contract notifications from a node's WebSocket endpoint.
type WSClient struct {
	mu   sync.Mutex
	url  string
	conn *websocket.Conn
	ref  int
}

// NewWSClient creates a WebSocket client. An http(s) URL is rewritten to
// ws(s) and suffixed with /ws when no path is given.
func NewWSClient(rawURL string) *WSClient {
	wsURL := rawURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[5:]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}
	if i := strings.Index(wsURL, "://"); i >= 0 && !strings.Contains(wsURL[i+3:], "/") {
		wsURL += "/ws"
	}
	return &WSClient{url: wsURL}
}

// Connect establishes the WebSocket connection.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	w.conn = conn
	return nil
}

// SubscribeNotifications subscribes to notifications emitted by contract.
func (w *WSClient) SubscribeNotifications(contract string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	w.ref++
	msg := RPCRequest{
		JSONRPC: "2.0",
		Method:  "subscribe",
		Params: []interface{}{
			"notification_from_execution",
			map[string]string{"contract": contract},
		},
		ID: w.ref,
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	return nil
}

// Stream reads notifications until ctx is done or the connection fails,
// sending each one to out. The connection is closed on return.
func (w *WSClient) Stream(ctx context.Context, out chan<- ExecutionNotification) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-stop:
		}
	}()

	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = w.Close()
			return fmt.Errorf("websocket read: %w", err)
		}
		if ev.Error != nil {
			return ev.Error
		}
		if ev.Method != "notification_from_execution" || len(ev.Params) == 0 {
			continue
		}

		var n ExecutionNotification
		if err := json.Unmarshal(ev.Params[0], &n); err != nil {
			continue
		}
		select {
		case out <- n:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := w.conn.Close()
	w.conn = nil
	return err
}
