package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream publishes and consumes events on a Redis stream with a consumer
// group. An entry is acknowledged only after its handler succeeded; entries
// left pending by a crashed consumer are reclaimed after ClaimIdle.
type Stream struct {
	client    *redis.Client
	logger    *zap.Logger
	stream    string
	group     string
	consumer  string
	maxLen    int64
	block     time.Duration
	claimIdle time.Duration
	batch     int64
}

type StreamConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MaxLen    int64
	Block     time.Duration
	ClaimIdle time.Duration
}

func NewStream(client *redis.Client, cfg StreamConfig, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		client:    client,
		logger:    logger.Named("events"),
		stream:    cfg.Stream,
		group:     cfg.Group,
		consumer:  cfg.Consumer,
		maxLen:    cfg.MaxLen,
		block:     cfg.Block,
		claimIdle: cfg.ClaimIdle,
		batch:     16,
	}
	if s.stream == "" {
		s.stream = "skillsync:events"
	}
	if s.group == "" {
		s.group = "matching"
	}
	if s.consumer == "" {
		s.consumer = "matching-1"
	}
	if s.block <= 0 {
		s.block = 5 * time.Second
	}
	if s.claimIdle <= 0 {
		s.claimIdle = 2 * time.Minute
	}
	return s
}

func (s *Stream) Publish(ctx context.Context, e Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: e.Values(),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Consume blocks, dispatching entries to h until ctx ends.
func (s *Stream) Consume(ctx context.Context, h Handler) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}

	s.logger.Info("consumer started",
		zap.String("stream", s.stream),
		zap.String("group", s.group),
		zap.String("consumer", s.consumer),
	)

	nextClaim := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !time.Now().Before(nextClaim) {
			s.reclaim(ctx, h)
			nextClaim = time.Now().Add(s.claimIdle / 2)
		}

		res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.batch,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("read group failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				s.dispatch(ctx, msg, h)
			}
		}
	}
}

func (s *Stream) reclaim(ctx context.Context, h Handler) {
	start := "0-0"
	for {
		msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimIdle,
			Start:    start,
			Count:    s.batch,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("autoclaim failed", zap.Error(err))
			}
			return
		}
		for _, msg := range msgs {
			s.dispatch(ctx, msg, h)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (s *Stream) dispatch(ctx context.Context, msg redis.XMessage, h Handler) {
	e, err := Decode(msg.ID, msg.Values)
	if err != nil {
		// Undecodable entries would be redelivered forever.
		s.logger.Error("dropping malformed event", zap.String("id", msg.ID), zap.Error(err))
		s.ack(ctx, msg.ID)
		return
	}

	if err := h(ctx, e); err != nil {
		s.logger.Warn("event handler failed, leaving pending",
			zap.String("id", msg.ID),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
		return
	}
	s.ack(ctx, msg.ID)
}

func (s *Stream) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		s.logger.Warn("ack failed", zap.String("id", id), zap.Error(err))
	}
}

func (s *Stream) ensureGroup(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
		if err == nil || strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("create consumer group: %w", err)
	}, b)
}
