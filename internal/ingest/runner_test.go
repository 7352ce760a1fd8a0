package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"stockalert/internal/dictionary"
	"stockalert/internal/matcher"
	"stockalert/internal/models"
	"stockalert/internal/sentiment"
)

type fakeSource struct {
	mu       sync.Mutex
	messages map[string][]Message
	err      error
	reversed bool
}

func (f *fakeSource) Messages(ctx context.Context, channel string, since, until time.Time) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msgs := append([]Message(nil), f.messages[channel]...)
	if f.reversed {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

type scriptedScorer struct {
	mu      sync.Mutex
	results []scoredText
}

type scoredText struct {
	match  string
	result sentiment.Result
	err    error
}

func (s *scriptedScorer) Score(ctx context.Context, text string) (sentiment.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.match != "" && strings.Contains(text, r.match) {
			return r.result, r.err
		}
	}
	return sentiment.Result{Label: "positive", Confidence: 0.5}, nil
}

func testRunner(repo *stubRepo, src Source, scorer sentiment.Scorer) *Runner {
	dict := dictionary.New(
		[]dictionary.Entity{{Name: "Acme", Code: "ACM"}, {Name: "Globex", Code: "GLX"}},
		[]string{"Semiconductors"},
	)
	return &Runner{
		Source:      src,
		Matcher:     &matcher.Matcher{Dict: dict},
		Sentiment:   &sentiment.Aggregator{Scorer: scorer},
		Repo:        repo,
		Location:    time.UTC,
		Concurrency: 2,
	}
}

func window(day time.Time) (time.Time, time.Time) {
	return day, day.AddDate(0, 0, 1)
}

var testDay = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func msg(channel string, hour int, text string) Message {
	return Message{
		Channel:   channel,
		Timestamp: testDay.Add(time.Duration(hour) * time.Hour),
		Text:      text,
	}
}

func TestRunEndToEnd(t *testing.T) {
	// msg1 mentions Acme twice (name + code) and Semiconductors once with a
	// positive 0.9 score; msg2 mentions Acme once but the scorer fails.
	repo := newStubRepo()
	src := &fakeSource{messages: map[string][]Message{
		"C": {
			msg("C", 1, "Acme (ACM) up on Semiconductors strength, Acme leads"),
			msg("C", 2, "Acme guidance withdrawn"),
		},
	}}
	scorer := &scriptedScorer{results: []scoredText{
		{match: "strength", result: sentiment.Result{Label: "positive", Confidence: 0.9}},
		{match: "guidance", err: errors.New("scorer down")},
	}}
	r := testRunner(repo, src, scorer)

	start, end := window(testDay)
	res := r.Run(context.Background(), "C", start, end)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.MessagesSeen != 2 || res.MessagesMatched != 2 {
		t.Fatalf("seen=%d matched=%d, want 2/2", res.MessagesSeen, res.MessagesMatched)
	}
	if res.ScorerFailures != 1 {
		t.Fatalf("scorer failures = %d, want 1", res.ScorerFailures)
	}

	acme := repo.rows[rowKey(testDay, "C", "Acme", models.KindStock)]
	if acme.MentionCount != 2 {
		t.Fatalf("Acme count = %d, want 2 (one per message, not per occurrence)", acme.MentionCount)
	}
	if acme.SentimentSamples != 1 || math.Abs(acme.MeanSentiment-0.9) > 1e-9 {
		t.Fatalf("Acme sentiment = %v samples=%d, want mean 0.9 from 1 sample", acme.MeanSentiment, acme.SentimentSamples)
	}

	ind := repo.rows[rowKey(testDay, "C", "Semiconductors", models.KindIndustry)]
	if ind.MentionCount != 1 {
		t.Fatalf("Semiconductors count = %d, want 1", ind.MentionCount)
	}
	if ind.MeanSentiment != 0 || ind.SentimentSamples != 0 {
		t.Fatalf("industry rows carry no sentiment, got %+v", ind)
	}
}

func TestRunSentimentMean(t *testing.T) {
	repo := newStubRepo()
	src := &fakeSource{messages: map[string][]Message{
		"C": {
			msg("C", 1, "Acme one"),
			msg("C", 2, "Acme two"),
			msg("C", 3, "Acme three"),
		},
	}}
	scorer := &scriptedScorer{results: []scoredText{
		{match: "one", result: sentiment.Result{Label: "positive", Confidence: 0.8}},
		{match: "two", result: sentiment.Result{Label: "negative", Confidence: 0.6}},
		{match: "three", result: sentiment.Result{Label: "positive", Confidence: 0.2}},
	}}
	r := testRunner(repo, src, scorer)

	start, end := window(testDay)
	if res := r.Run(context.Background(), "C", start, end); res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	acme := repo.rows[rowKey(testDay, "C", "Acme", models.KindStock)]
	want := (0.8 - 0.6 + 0.2) / 3
	if acme.MentionCount != 3 || math.Abs(acme.MeanSentiment-want) > 1e-9 {
		t.Fatalf("count=%d mean=%v, want 3 / %v", acme.MentionCount, acme.MeanSentiment, want)
	}
}

func TestRunIdempotentReingestion(t *testing.T) {
	repo := newStubRepo()
	src := &fakeSource{messages: map[string][]Message{
		"C": {msg("C", 1, "Acme day"), msg("C", 2, "Globex night")},
	}}
	r := testRunner(repo, src, &scriptedScorer{})
	start, end := window(testDay)

	if res := r.Run(context.Background(), "C", start, end); res.Err != nil {
		t.Fatalf("first run: %v", res.Err)
	}
	first := map[string]models.MentionAggregate{}
	for k, v := range repo.rows {
		first[k] = v
	}

	if res := r.Run(context.Background(), "C", start, end); res.Err != nil {
		t.Fatalf("second run: %v", res.Err)
	}
	if len(repo.rows) != len(first) {
		t.Fatalf("row count changed after re-ingestion: %d -> %d", len(first), len(repo.rows))
	}
	for k, v := range first {
		got := repo.rows[k]
		if got.MentionCount != v.MentionCount || got.SentimentSamples != v.SentimentSamples {
			t.Fatalf("row %s changed after re-ingestion: %+v -> %+v", k, v, got)
		}
	}
}

func TestRunOrderIndependence(t *testing.T) {
	messages := []Message{
		msg("C", 1, "Acme alpha"),
		msg("C", 2, "Globex beta"),
		msg("C", 3, "Acme and Semiconductors gamma"),
	}
	scorer := &scriptedScorer{results: []scoredText{
		{match: "alpha", result: sentiment.Result{Label: "positive", Confidence: 0.4}},
		{match: "beta", result: sentiment.Result{Label: "negative", Confidence: 0.3}},
		{match: "gamma", result: sentiment.Result{Label: "positive", Confidence: 0.6}},
	}}
	start, end := window(testDay)

	forward := newStubRepo()
	r := testRunner(forward, &fakeSource{messages: map[string][]Message{"C": messages}}, scorer)
	if res := r.Run(context.Background(), "C", start, end); res.Err != nil {
		t.Fatalf("forward run: %v", res.Err)
	}

	backward := newStubRepo()
	r = testRunner(backward, &fakeSource{messages: map[string][]Message{"C": messages}, reversed: true}, scorer)
	if res := r.Run(context.Background(), "C", start, end); res.Err != nil {
		t.Fatalf("backward run: %v", res.Err)
	}

	if len(forward.rows) != len(backward.rows) {
		t.Fatalf("aggregate sets differ: %d vs %d rows", len(forward.rows), len(backward.rows))
	}
	for k, f := range forward.rows {
		b := backward.rows[k]
		if f.MentionCount != b.MentionCount || math.Abs(f.MeanSentiment-b.MeanSentiment) > 1e-9 {
			t.Fatalf("row %s differs by order: %+v vs %+v", k, f, b)
		}
	}
}

func TestRunHalfOpenWindow(t *testing.T) {
	repo := newStubRepo()
	start, end := window(testDay)
	src := &fakeSource{messages: map[string][]Message{
		"C": {
			{Channel: "C", Timestamp: start, Text: "Acme at start"},
			{Channel: "C", Timestamp: end, Text: "Acme at end"},
			{Channel: "C", Timestamp: start.Add(-time.Second), Text: "Acme before"},
		},
	}}
	r := testRunner(repo, src, &scriptedScorer{})
	res := r.Run(context.Background(), "C", start, end)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	acme := repo.rows[rowKey(testDay, "C", "Acme", models.KindStock)]
	if acme.MentionCount != 1 {
		t.Fatalf("count = %d, want 1 (only the window-start message)", acme.MentionCount)
	}
}

func TestRunInvalidWindow(t *testing.T) {
	repo := newStubRepo()
	r := testRunner(repo, &fakeSource{}, &scriptedScorer{})
	res := r.Run(context.Background(), "C", testDay, testDay)
	var cErr *CycleError
	if !errors.As(res.Err, &cErr) || cErr.Kind != FailureInvalidWindow {
		t.Fatalf("err = %v, want CycleError invalid_window", res.Err)
	}
	if len(repo.runs) != 0 {
		t.Fatalf("invalid window should be rejected before any work")
	}
}

func TestRunSourceUnavailable(t *testing.T) {
	repo := newStubRepo()
	src := &fakeSource{err: errors.New("connect refused")}
	r := testRunner(repo, src, &scriptedScorer{})
	start, end := window(testDay)
	res := r.Run(context.Background(), "C", start, end)
	var cErr *CycleError
	if !errors.As(res.Err, &cErr) || cErr.Kind != FailureSourceUnavailable {
		t.Fatalf("err = %v, want CycleError source_unavailable", res.Err)
	}
	if cErr.Channel != "C" || !cErr.WindowStart.Equal(start) {
		t.Fatalf("cycle error lacks channel/window context: %+v", cErr)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("nothing should be flushed on source failure")
	}
}

func TestRunStoreUnavailable(t *testing.T) {
	repo := newStubRepo()
	repo.failTx = true
	src := &fakeSource{messages: map[string][]Message{"C": {msg("C", 1, "Acme")}}}
	r := testRunner(repo, src, &scriptedScorer{})
	start, end := window(testDay)
	res := r.Run(context.Background(), "C", start, end)
	var cErr *CycleError
	if !errors.As(res.Err, &cErr) || cErr.Kind != FailureStoreUnavailable {
		t.Fatalf("err = %v, want CycleError store_unavailable", res.Err)
	}
	run := repo.runs[res.RunID]
	if run.Status != models.RunStatusFailed || run.Error == "" {
		t.Fatalf("failed flush must surface in run record, got %+v", run)
	}
}

func TestRunAllIsolatesChannelFailures(t *testing.T) {
	repo := newStubRepo()
	src := &fakeSource{messages: map[string][]Message{
		"ok": {msg("ok", 1, "Acme fine")},
	}}
	failing := &switchSource{inner: src, failFor: "bad"}
	r := testRunner(repo, failing, &scriptedScorer{})
	start, end := window(testDay)

	results := r.RunAll(context.Background(), []string{"bad", "ok"}, start, end)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Fatalf("bad channel should fail")
	}
	if results[1].Err != nil {
		t.Fatalf("ok channel failed: %v", results[1].Err)
	}
	acme := repo.rows[rowKey(testDay, "ok", "Acme", models.KindStock)]
	if acme.MentionCount != 1 {
		t.Fatalf("ok channel aggregate missing: %+v", repo.rows)
	}
}

type switchSource struct {
	inner   Source
	failFor string
}

func (s *switchSource) Messages(ctx context.Context, channel string, since, until time.Time) ([]Message, error) {
	if channel == s.failFor {
		return nil, errors.New("source timeout")
	}
	return s.inner.Messages(ctx, channel, since, until)
}

func TestRunMultiDayBackfillBuckets(t *testing.T) {
	repo := newStubRepo()
	day2 := testDay.AddDate(0, 0, 1)
	src := &fakeSource{messages: map[string][]Message{
		"C": {
			{Channel: "C", Timestamp: testDay.Add(5 * time.Hour), Text: "Acme d1"},
			{Channel: "C", Timestamp: day2.Add(5 * time.Hour), Text: "Acme d2"},
			{Channel: "C", Timestamp: day2.Add(6 * time.Hour), Text: "Acme d2 again"},
		},
	}}
	r := testRunner(repo, src, &scriptedScorer{})

	res := r.Run(context.Background(), "C", testDay, testDay.AddDate(0, 0, 2))
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	d1 := repo.rows[rowKey(testDay, "C", "Acme", models.KindStock)]
	d2 := repo.rows[rowKey(day2, "C", "Acme", models.KindStock)]
	if d1.MentionCount != 1 || d2.MentionCount != 2 {
		t.Fatalf("day buckets = %d/%d, want 1/2", d1.MentionCount, d2.MentionCount)
	}
	if repo.txStarts != 1 {
		t.Fatalf("flush should be one transaction per channel cycle, got %d", repo.txStarts)
	}
}

func TestDayBucketingRespectsLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on Aug 30 is already Aug 31 in Seoul.
	ts := time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
	got := dayOf(ts, seoul)
	want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("dayOf = %v, want %v", got, want)
	}
}
