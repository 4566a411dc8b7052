package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleEvent is one sale pushed over the live feed.
type SaleEvent struct {
	ItemName string          `json:"item_name"`
	Price    decimal.Decimal `json:"price"`
	SoldAt   time.Time       `json:"sold_at"`
}

// SaleHandler consumes sale events. Handlers run on the stream's reader
// goroutine and must not block for long.
type SaleHandler func(models.Sale)

// SalesStream subscribes to the marketplace's live sale feed and forwards
// events to a handler, reconnecting with a flat delay when the connection
// drops. The stream only updates last-sale data; the rolling statistics
// are still rebuilt from full history on the refresh schedule.
type SalesStream struct {
	wsURL        string
	apiKey       string
	handler      SaleHandler
	reconnectGap time.Duration
	log          *zap.SugaredLogger
}

// NewSalesStream builds a stream against wsURL delivering into handler.
func NewSalesStream(wsURL, apiKey string, handler SaleHandler, log *zap.SugaredLogger) *SalesStream {
	return &SalesStream{
		wsURL:        wsURL,
		apiKey:       apiKey,
		handler:      handler,
		reconnectGap: 5 * time.Second,
		log:          log,
	}
}

// Run blocks, reading the feed until the context is cancelled.
func (s *SalesStream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.readOnce(ctx); err != nil {
			s.log.Warnw("sales stream disconnected", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectGap):
		}
	}
}

func (s *SalesStream) readOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	subscribe := map[string]string{"op": "subscribe", "channel": "sales", "token": s.apiKey}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("sales stream connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var event SaleEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.log.Debugw("skipping malformed sale event", "error", err)
			continue
		}
		if event.ItemName == "" {
			continue
		}
		s.handler(models.Sale{
			ItemName: event.ItemName,
			Price:    event.Price,
			SoldAt:   event.SoldAt,
		})
	}
}
