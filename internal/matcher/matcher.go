package matcher

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"stockalert/internal/dictionary"
)

// Tokenizer extracts noun tokens from message text. It is an external
// collaborator and may be nil or failing; matching then degrades to the
// substring pass only.
type Tokenizer interface {
	Nouns(ctx context.Context, text string) ([]string, error)
}

// Mention identifies one entity referenced by a message. A message yields at
// most one Mention per (Name, Kind), no matter how many patterns hit.
type Mention struct {
	Name string
	Kind dictionary.Kind
}

type Matcher struct {
	Dict      *dictionary.Dictionary
	Tokenizer Tokenizer
	Logger    *zap.Logger
}

// Match returns the deduplicated entity mentions in text. Matching is exact
// on the dictionary's canonical spelling: a substring pass over stock names,
// stock codes and industry labels, then an exact-equality pass over the
// tokenizer's nouns.
func (m *Matcher) Match(ctx context.Context, text string) []Mention {
	if m == nil || m.Dict == nil || text == "" {
		return nil
	}

	seen := map[Mention]struct{}{}
	var out []Mention
	add := func(name string, kind dictionary.Kind) {
		key := Mention{Name: name, Kind: kind}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	for _, s := range m.Dict.Stocks() {
		if strings.Contains(text, s.Name) || (s.Code != "" && strings.Contains(text, s.Code)) {
			add(s.Name, dictionary.KindStock)
		}
	}
	for _, ind := range m.Dict.Industries() {
		if strings.Contains(text, ind.Name) {
			add(ind.Name, dictionary.KindIndustry)
		}
	}

	if m.Tokenizer != nil {
		nouns, err := m.Tokenizer.Nouns(ctx, text)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("tokenizer unavailable, substring matches only", zap.Error(err))
			}
			return out
		}
		for _, noun := range nouns {
			if e, ok := m.Dict.StockByName(noun); ok {
				add(e.Name, dictionary.KindStock)
			}
			if e, ok := m.Dict.IndustryByName(noun); ok {
				add(e.Name, dictionary.KindIndustry)
			}
		}
	}

	return out
}

// Stocks filters mentions down to the STOCK kind.
func Stocks(mentions []Mention) []Mention {
	var out []Mention
	for _, m := range mentions {
		if m.Kind == dictionary.KindStock {
			out = append(out, m)
		}
	}
	return out
}
