package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
)

// Subscriber modes.
const (
	ModePoll   = "poll"
	ModeStream = "ws"
)

// Batch is a group of events handed to the consumer.
//
// Polled batches cover exactly one block; the consumer may persist Block+1 as
// its cursor once the batch is applied. Streamed batches have Live set and
// carry no cursor.
type Batch struct {
	Block  uint64
	Events []Event
	Live   bool
}

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	Mode         string
	PollInterval time.Duration
}

// Subscriber turns ledger blocks into event batches on a channel.
type Subscriber struct {
	blocks  BlockSource
	stream  StreamSource
	mode    string
	poll    time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewSubscriber creates a subscriber. stream may be nil in poll mode.
func NewSubscriber(blocks BlockSource, stream StreamSource, cfg SubscriberConfig, logger *logging.Logger, m *metrics.Metrics) (*Subscriber, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModePoll
	}
	switch cfg.Mode {
	case ModePoll:
		if blocks == nil {
			return nil, fmt.Errorf("poll subscriber requires a block source")
		}
	case ModeStream:
		if stream == nil {
			return nil, fmt.Errorf("stream subscriber requires a stream source")
		}
	default:
		return nil, fmt.Errorf("unknown subscriber mode %q", cfg.Mode)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.NewDiscard("subscriber")
	}
	return &Subscriber{
		blocks:  blocks,
		stream:  stream,
		mode:    cfg.Mode,
		poll:    cfg.PollInterval,
		logger:  logger,
		metrics: m,
	}, nil
}

// Run delivers batches to out until ctx is done. from is the first block to
// scan in poll mode; it is ignored when streaming.
func (s *Subscriber) Run(ctx context.Context, from uint64, out chan<- Batch) error {
	s.logger.Info(ctx, "ledger subscriber started", map[string]interface{}{
		"mode": s.mode,
		"from": from,
	})
	if s.mode == ModeStream {
		return s.runStream(ctx, out)
	}
	return s.runPoll(ctx, from, out)
}

func (s *Subscriber) runPoll(ctx context.Context, next uint64, out chan<- Batch) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		var err error
		next, err = s.scan(ctx, next, out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn(ctx, "block scan failed", map[string]interface{}{
				"block": next,
				"error": err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scan emits every block from next up to the current tip and returns the
// next block to scan. Empty blocks are emitted only at the tip so the
// consumer's cursor stays current without a write per block.
func (s *Subscriber) scan(ctx context.Context, next uint64, out chan<- Batch) (uint64, error) {
	count, err := s.blocks.BlockCount(ctx)
	if err != nil {
		return next, err
	}
	for ; next < count; next++ {
		events, err := s.blocks.BlockEvents(ctx, next)
		if err != nil {
			return next, err
		}
		if len(events) == 0 && next+1 < count {
			continue
		}
		for _, ev := range events {
			s.metrics.RecordLedgerEvent(ev.Name)
		}
		select {
		case out <- Batch{Block: next, Events: events}:
		case <-ctx.Done():
			return next, ctx.Err()
		}
	}
	return next, nil
}

func (s *Subscriber) runStream(ctx context.Context, out chan<- Batch) error {
	events := make(chan Event, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- s.stream.StreamEvents(ctx, events) }()

	for {
		select {
		case err := <-errCh:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream: %w", err)
		case ev := <-events:
			s.metrics.RecordLedgerEvent(ev.Name)
			select {
			case out <- Batch{Block: ev.Block, Events: []Event{ev}, Live: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
