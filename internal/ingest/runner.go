package ingest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"stockalert/internal/dictionary"
	"stockalert/internal/matcher"
	"stockalert/internal/models"
	"stockalert/internal/repository"
	"stockalert/internal/sentiment"
)

// Message is one raw channel message. It is consumed once per cycle and
// never persisted; only derived mention aggregates survive.
type Message struct {
	Channel   string
	Timestamp time.Time
	Text      string
}

// Source delivers a channel's messages for a half-open window. One-shot per
// call, finite, may fail with a transport error.
type Source interface {
	Messages(ctx context.Context, channel string, since, until time.Time) ([]Message, error)
}

// Runner drives one ingestion cycle per channel: source -> matcher ->
// sentiment -> store. Aggregation happens in memory for the whole cycle and
// is flushed once, replace-on-flush per (date, channel), inside a single
// transaction per channel. Used for both routine one-day cycles and
// multi-day backfills; only the window differs.
type Runner struct {
	Source    Source
	Matcher   *matcher.Matcher
	Sentiment *sentiment.Aggregator
	Repo      repository.Repository
	Logger    *zap.Logger

	// Location is the fixed reference timezone for calendar-day bucketing.
	// Nil means UTC.
	Location *time.Location
	// Concurrency bounds how many channels RunAll processes at once.
	Concurrency int
}

// Result summarizes one channel's cycle. Err is the terminal CycleError, if
// any; a completed flush has Err == nil even when some messages degraded.
type Result struct {
	RunID           string
	Channel         string
	WindowStart     time.Time
	WindowEnd       time.Time
	MessagesSeen    int64
	MessagesMatched int64
	EntitiesFlushed int64
	ScorerFailures  int64
	Err             error
}

type bucketKey struct {
	date   time.Time
	entity string
	kind   dictionary.Kind
}

type bucket struct {
	count   int64
	sum     float64
	samples int64
}

// Run ingests one channel's window. Counters accumulate in memory only; on
// any terminal failure nothing is flushed and the store keeps the previous
// aggregates for the window.
func (r *Runner) Run(ctx context.Context, channel string, windowStart, windowEnd time.Time) Result {
	res := Result{
		RunID:       uuid.NewString(),
		Channel:     channel,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	if !windowStart.Before(windowEnd) {
		res.Err = r.cycleErr(channel, windowStart, windowEnd, FailureInvalidWindow,
			errors.New("window_start must precede window_end"))
		return res
	}

	r.recordStart(ctx, &res)

	messages, err := r.Source.Messages(ctx, channel, windowStart, windowEnd)
	if err != nil {
		res.Err = r.cycleErr(channel, windowStart, windowEnd, FailureSourceUnavailable, err)
		r.recordFinish(ctx, &res)
		return res
	}

	buckets := map[bucketKey]*bucket{}
	for _, msg := range messages {
		if msg.Text == "" {
			continue
		}
		ts := msg.Timestamp
		if ts.Before(windowStart) || !ts.Before(windowEnd) {
			continue
		}
		res.MessagesSeen++

		mentions := r.Matcher.Match(ctx, msg.Text)
		if len(mentions) == 0 {
			continue
		}
		res.MessagesMatched++

		var scores map[string]float64
		stocks := matcher.Stocks(mentions)
		if len(stocks) > 0 {
			var ok bool
			scores, ok = r.Sentiment.Score(ctx, msg.Text, stocks)
			if !ok {
				res.ScorerFailures++
			}
		}

		day := dayOf(ts, r.Location)
		for _, m := range mentions {
			key := bucketKey{date: day, entity: m.Name, kind: m.Kind}
			b := buckets[key]
			if b == nil {
				b = &bucket{}
				buckets[key] = b
			}
			b.count++
			if score, ok := scores[m.Name]; ok && m.Kind == dictionary.KindStock {
				b.sum += score
				b.samples++
			}
		}
	}

	if err := ctx.Err(); err != nil {
		// Cancelled before flush: discard in-memory counters, never flush
		// partially.
		res.Err = r.cycleErr(channel, windowStart, windowEnd, FailureStoreUnavailable, err)
		r.recordFinish(ctx, &res)
		return res
	}

	if err := r.flush(ctx, channel, buckets); err != nil {
		res.Err = r.cycleErr(channel, windowStart, windowEnd, FailureStoreUnavailable, err)
		r.recordFinish(ctx, &res)
		return res
	}
	res.EntitiesFlushed = int64(len(buckets))

	r.recordFinish(ctx, &res)
	if r.Logger != nil {
		r.Logger.Info("ingest cycle ok",
			zap.String("channel", channel),
			zap.Time("window_start", windowStart),
			zap.Time("window_end", windowEnd),
			zap.Int64("messages", res.MessagesSeen),
			zap.Int64("matched", res.MessagesMatched),
			zap.Int64("entities", res.EntitiesFlushed),
			zap.Int64("scorer_failures", res.ScorerFailures),
		)
	}
	return res
}

// RunAll processes channels independently with bounded concurrency. A failed
// channel never blocks or corrupts the others; per-channel outcomes are
// returned in channel order.
func (r *Runner) RunAll(ctx context.Context, channels []string, windowStart, windowEnd time.Time) []Result {
	results := make([]Result, len(channels))

	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, channel := range channels {
		i, channel := i, channel
		g.Go(func() error {
			results[i] = r.Run(ctx, channel, windowStart, windowEnd)
			if err := results[i].Err; err != nil && r.Logger != nil {
				r.Logger.Warn("ingest cycle failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// flush writes all buckets in one transaction: for every touched (date,
// channel) slice the previous aggregates are replaced wholesale.
func (r *Runner) flush(ctx context.Context, channel string, buckets map[bucketKey]*bucket) error {
	if len(buckets) == 0 {
		return nil
	}

	byDate := map[time.Time][]models.MentionAggregate{}
	for key, b := range buckets {
		mean := 0.0
		if b.samples > 0 {
			mean = b.sum / float64(b.samples)
		}
		byDate[key.date] = append(byDate[key.date], models.MentionAggregate{
			Date:             key.date,
			Channel:          channel,
			EntityName:       key.entity,
			EntityKind:       string(key.kind),
			MentionCount:     b.count,
			SentimentSum:     decimal.NewFromFloat(b.sum),
			SentimentSamples: b.samples,
			MeanSentiment:    mean,
		})
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		for _, d := range dates {
			if err := r.Repo.DeleteMentionWindowTx(ctx, tx, d, channel); err != nil {
				return err
			}
			if err := r.Repo.UpsertMentionDeltasTx(ctx, tx, byDate[d]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) recordStart(ctx context.Context, res *Result) {
	if r.Repo == nil {
		return
	}
	err := r.Repo.InsertIngestRun(ctx, &models.IngestRun{
		ID:          res.RunID,
		Channel:     res.Channel,
		WindowStart: res.WindowStart,
		WindowEnd:   res.WindowEnd,
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil && r.Logger != nil {
		r.Logger.Warn("ingest run insert failed", zap.Error(err))
	}
}

func (r *Runner) recordFinish(ctx context.Context, res *Result) {
	if r.Repo == nil {
		return
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":           models.RunStatusOK,
		"messages_seen":    res.MessagesSeen,
		"messages_matched": res.MessagesMatched,
		"entities_flushed": res.EntitiesFlushed,
		"scorer_failures":  res.ScorerFailures,
		"finished_at":      &now,
	}
	if res.Err != nil {
		updates["status"] = models.RunStatusFailed
		updates["error"] = res.Err.Error()
	}
	// Best effort: run records are provenance, their loss must not fail a
	// completed flush.
	if err := r.Repo.UpdateIngestRun(context.WithoutCancel(ctx), res.RunID, updates); err != nil && r.Logger != nil {
		r.Logger.Warn("ingest run update failed", zap.Error(err))
	}
}

// dayOf buckets a timestamp to its calendar day in loc, stored as a UTC
// midnight date value. Day boundaries never leak a message into two buckets.
func dayOf(ts time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayStart returns the instant ts's calendar day begins in loc. Cycle
// windows are built from day starts so they align with aggregate buckets.
func DayStart(ts time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
