package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"marketplace-trading-bot-go/internal/guard"
	"marketplace-trading-bot-go/internal/models"

	"go.uber.org/zap"
)

// Handler executes one opportunity. It must be safe for concurrent calls.
type Handler func(ctx context.Context, opp *models.BuyOpportunity) error

// DeadLetterSink receives opportunities that will never be retried again.
type DeadLetterSink interface {
	InsertDeadLetter(opportunityID, payload, reason string, attempts int) error
}

// Consumer drains the queue with a pool of workers. Each worker pulls due
// envelopes, runs the handler and acks, reschedules or dead-letters based
// on the error class.
type Consumer struct {
	queue    *Queue
	handler  Handler
	deadSink DeadLetterSink
	workers  int
	poll     time.Duration
	log      *zap.SugaredLogger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewConsumer(q *Queue, handler Handler, deadSink DeadLetterSink, workers int, log *zap.SugaredLogger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		queue:    q,
		handler:  handler,
		deadSink: deadSink,
		workers:  workers,
		poll:     time.Second,
		log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// Run blocks until ctx is canceled. A dispatcher polls for due envelopes
// and fans them out to the workers over a channel; in-flight ids are
// tracked so one opportunity is never handled twice concurrently.
func (c *Consumer) Run(ctx context.Context) {
	work := make(chan *Envelope)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for env := range work {
				c.process(ctx, env)
			}
		}()
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

dispatch:
	for {
		select {
		case <-ctx.Done():
			break dispatch
		case <-ticker.C:
		}

		due, err := c.queue.Due(time.Now(), c.workers*2)
		if err != nil {
			c.log.Errorw("queue scan failed", "error", err)
			continue
		}
		for _, env := range due {
			if !c.claim(env.Opportunity.ID) {
				continue
			}
			select {
			case work <- env:
			case <-ctx.Done():
				c.release(env.Opportunity.ID)
				break dispatch
			}
		}
	}

	close(work)
	wg.Wait()
}

func (c *Consumer) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[id]; ok {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Consumer) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

func (c *Consumer) process(ctx context.Context, env *Envelope) {
	opp := env.Opportunity
	defer c.release(opp.ID)

	err := c.handler(ctx, &opp)
	if err == nil {
		if ackErr := c.queue.Ack(opp.ID); ackErr != nil {
			c.log.Errorw("ack failed", "opportunity", opp.ID, "error", ackErr)
		}
		return
	}

	// An open circuit is the API's problem, not this opportunity's: push it
	// back without charging a delivery attempt.
	var open *guard.CircuitOpenError
	if errors.As(err, &open) {
		c.log.Warnw("circuit open, deferring opportunity",
			"opportunity", opp.ID, "retry_after", open.RetryAfter)
		if defErr := c.queue.Defer(opp.ID, open.RetryAfter); defErr != nil {
			c.log.Errorw("defer failed", "opportunity", opp.ID, "error", defErr)
		}
		return
	}

	if !models.IsRetryable(err) {
		c.log.Warnw("opportunity failed terminally",
			"opportunity", opp.ID, "item", opp.ItemName, "error", err)
		c.deadLetter(&opp, env.Attempts+1, err.Error())
		if ackErr := c.queue.Ack(opp.ID); ackErr != nil {
			c.log.Errorw("ack failed", "opportunity", opp.ID, "error", ackErr)
		}
		return
	}

	nacked, exhausted, nackErr := c.queue.Nack(opp.ID)
	if nackErr != nil {
		c.log.Errorw("nack failed", "opportunity", opp.ID, "error", nackErr)
		return
	}
	if exhausted {
		c.log.Warnw("opportunity exhausted retries",
			"opportunity", opp.ID, "item", opp.ItemName, "attempts", nacked.Attempts, "error", err)
		c.deadLetter(&opp, nacked.Attempts, err.Error())
		return
	}
	c.log.Debugw("opportunity rescheduled",
		"opportunity", opp.ID, "attempts", nacked.Attempts, "not_before", nacked.NotBefore, "error", err)
}

func (c *Consumer) deadLetter(opp *models.BuyOpportunity, attempts int, reason string) {
	payload, err := json.Marshal(opp)
	if err != nil {
		c.log.Errorw("dead letter marshal failed", "opportunity", opp.ID, "error", err)
		return
	}
	if err := c.deadSink.InsertDeadLetter(opp.ID, string(payload), reason, attempts); err != nil {
		c.log.Errorw("dead letter insert failed", "opportunity", opp.ID, "error", err)
	}
}
