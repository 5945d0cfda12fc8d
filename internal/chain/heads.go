package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// HeadNotifierConfig configures the newHeads subscription.
type HeadNotifierConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHeadNotifierConfig returns default subscription configuration.
func DefaultHeadNotifierConfig() HeadNotifierConfig {
	return HeadNotifierConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadNotifier subscribes to eth_subscribe("newHeads") and publishes head
// numbers. It is a wake-up signal only: the listener still polls, so a
// dropped notification costs at most one poll interval.
type HeadNotifier struct {
	endpoint string
	config   HeadNotifierConfig
	logger   zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subID is the active subscription id, empty until confirmed.
	subID   string
	subIDMu sync.RWMutex

	// pending maps request ID to channel waiting for subscription ID
	pending   map[uint64]chan string
	pendingMu sync.Mutex

	heads chan uint64

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// NewHeadNotifier dials endpoint and subscribes to new heads.
func NewHeadNotifier(ctx context.Context, endpoint string, config *HeadNotifierConfig, logger zerolog.Logger) (*HeadNotifier, error) {
	cfg := DefaultHeadNotifierConfig()
	if config != nil {
		cfg = *config
	}

	n := &HeadNotifier{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		pending:  make(map[uint64]chan string),
		heads:    make(chan uint64, 1),
		done:     make(chan struct{}),
	}

	if err := n.connect(ctx); err != nil {
		return nil, err
	}

	n.wg.Add(1)
	go n.readLoop()

	n.wg.Add(1)
	go n.pingLoop()

	if err := n.subscribe(ctx); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// Heads returns the notification channel. Only the latest head is kept
// when the consumer is slow.
func (n *HeadNotifier) Heads() <-chan uint64 {
	return n.heads
}

func (n *HeadNotifier) connect(ctx context.Context) error {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, n.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	n.conn = conn
	return nil
}

// subscribe sends eth_subscribe and waits for the subscription id.
func (n *HeadNotifier) subscribe(ctx context.Context) error {
	if n.closed.Load() {
		return fmt.Errorf("notifier closed")
	}

	reqID := n.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	confirmCh := make(chan string, 1)
	n.pendingMu.Lock()
	n.pending[reqID] = confirmCh
	n.pendingMu.Unlock()

	n.connMu.Lock()
	if n.conn == nil {
		n.connMu.Unlock()
		n.dropPending(reqID)
		return fmt.Errorf("not connected")
	}
	n.conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
	err := n.conn.WriteJSON(req)
	n.connMu.Unlock()

	if err != nil {
		n.dropPending(reqID)
		return fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case id, ok := <-confirmCh:
		if !ok {
			return fmt.Errorf("notifier closed")
		}
		n.subIDMu.Lock()
		n.subID = id
		n.subIDMu.Unlock()
		return nil
	case <-time.After(30 * time.Second):
		n.dropPending(reqID)
		return fmt.Errorf("subscription timeout after 30s")
	case <-n.done:
		return fmt.Errorf("notifier closed")
	case <-ctx.Done():
		n.dropPending(reqID)
		return ctx.Err()
	}
}

func (n *HeadNotifier) dropPending(reqID uint64) {
	n.pendingMu.Lock()
	delete(n.pending, reqID)
	n.pendingMu.Unlock()
}

// Close closes the connection. Safe to call more than once.
func (n *HeadNotifier) Close() error {
	if n.closed.Swap(true) {
		return nil
	}

	close(n.done)

	n.connMu.Lock()
	if n.conn != nil {
		n.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		n.conn.Close()
	}
	n.connMu.Unlock()

	n.pendingMu.Lock()
	for id, ch := range n.pending {
		close(ch)
		delete(n.pending, id)
	}
	n.pendingMu.Unlock()

	n.wg.Wait()
	return nil
}

func (n *HeadNotifier) readLoop() {
	defer n.wg.Done()

	reconnectDelay := n.config.ReconnectDelay

	for !n.closed.Load() {
		n.connMu.Lock()
		conn := n.conn
		n.connMu.Unlock()

		if conn == nil {
			select {
			case <-n.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(n.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if n.closed.Load() {
				return
			}

			if !n.reconnecting.Swap(true) {
				n.logger.Warn().Err(err).Dur("delay", reconnectDelay).Msg("newHeads connection lost, reconnecting")
				go n.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > n.config.MaxReconnectDelay {
				reconnectDelay = n.config.MaxReconnectDelay
			}

			select {
			case <-n.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = n.config.ReconnectDelay
		n.handleMessage(message)
	}
}

func (n *HeadNotifier) reconnect(delay time.Duration) {
	defer n.reconnecting.Store(false)

	if n.closed.Load() {
		return
	}

	select {
	case <-n.done:
		return
	case <-time.After(delay):
	}

	n.connMu.Lock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := n.connect(ctx); err != nil {
		return
	}

	// Resubscribe in the background: the read loop must be free to deliver
	// the confirmation.
	go func() {
		subCtx, subCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer subCancel()
		if err := n.subscribe(subCtx); err != nil {
			n.logger.Warn().Err(err).Msg("newHeads resubscribe failed")
		}
	}()
}

func (n *HeadNotifier) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID != 0 && resp.Result != "" {
		n.pendingMu.Lock()
		ch, ok := n.pending[resp.ID]
		if ok {
			delete(n.pending, resp.ID)
		}
		n.pendingMu.Unlock()
		if ok {
			select {
			case ch <- resp.Result:
			default:
			}
		}
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "eth_subscription" && notif.Params != nil {
		n.subIDMu.RLock()
		current := n.subID
		n.subIDMu.RUnlock()
		if current != "" && notif.Params.Subscription != current {
			return
		}
		n.publish(uint64(notif.Params.Result.Number))
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		n.logger.Warn().Int("code", errResp.Error.Code).Str("message", errResp.Error.Message).Msg("newHeads error response")
	}
}

// publish replaces any unread head with the newer one.
func (n *HeadNotifier) publish(head uint64) {
	for {
		select {
		case n.heads <- head:
			return
		default:
		}
		select {
		case <-n.heads:
		default:
		}
	}
}

func (n *HeadNotifier) pingLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.done:
			return
		case <-ticker.C:
			n.connMu.Lock()
			if n.conn != nil {
				n.conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
				_ = n.conn.WriteMessage(websocket.PingMessage, nil)
			}
			n.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  string `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription string   `json:"subscription"`
	Result       wsHeader `json:"result"`
}

type wsHeader struct {
	Number hexutil.Uint64 `json:"number"`
}
