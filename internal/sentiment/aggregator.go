package sentiment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"stockalert/internal/matcher"
)

// Result is the external scorer's verdict for one text prefix.
type Result struct {
	Label      string
	Confidence float64
}

// Scorer is the external sentiment model boundary. It may fail or time out;
// the aggregator degrades to "no sample" in that case.
type Scorer interface {
	Score(ctx context.Context, text string) (Result, error)
}

// Aggregator turns one message into at most one signed sentiment sample per
// mentioned stock. The scorer is invoked once per message on a rune-bounded
// prefix; the resulting score is applied identically to every stock the
// message mentions. Industries never receive sentiment.
type Aggregator struct {
	Scorer Scorer
	// MaxChars caps the scorer input in runes. Zero means DefaultMaxChars.
	MaxChars int
	Logger   *zap.Logger
}

const DefaultMaxChars = 512

// Score returns entity_name -> signed score for the given stock mentions.
// ok is false when the message contributes no sentiment sample: no stock
// mentions, no scorer configured, or scorer failure. Mention counting is
// unaffected either way.
func (a *Aggregator) Score(ctx context.Context, text string, stocks []matcher.Mention) (map[string]float64, bool) {
	if a == nil || a.Scorer == nil || len(stocks) == 0 {
		return nil, false
	}

	res, err := a.Scorer.Score(ctx, a.prefix(text))
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("sentiment scorer failed, message counted without sample", zap.Error(err))
		}
		return nil, false
	}

	score := res.Confidence
	if !strings.HasPrefix(strings.ToLower(res.Label), "positive") {
		score = -score
	}

	out := make(map[string]float64, len(stocks))
	for _, s := range stocks {
		out[s.Name] = score
	}
	return out, true
}

func (a *Aggregator) prefix(text string) string {
	max := a.MaxChars
	if max <= 0 {
		max = DefaultMaxChars
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
