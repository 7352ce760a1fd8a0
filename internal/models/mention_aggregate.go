package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity kinds persisted in mention_aggregates.entity_kind.
const (
	KindStock    = "STOCK"
	KindIndustry = "INDUSTRY"
)

// MentionAggregate is the daily per-channel per-entity rollup. MentionCount
// counts distinct messages that mentioned the entity, never phrase
// occurrences. MeanSentiment is SentimentSum / SentimentSamples and stays 0
// for INDUSTRY rows and for stocks without a single successful score.
type MentionAggregate struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:uniq_mention_bucket;index" json:"date"`
	Channel    string    `gorm:"type:varchar(100);not null;uniqueIndex:uniq_mention_bucket;index" json:"channel"`
	EntityName string    `gorm:"type:varchar(200);not null;uniqueIndex:uniq_mention_bucket" json:"entity_name"`
	EntityKind string    `gorm:"type:varchar(10);not null;uniqueIndex:uniq_mention_bucket;index" json:"entity_kind"`

	MentionCount     int64           `gorm:"not null;default:0" json:"mention_count"`
	SentimentSum     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0" json:"-"`
	SentimentSamples int64           `gorm:"not null;default:0" json:"sentiment_samples"`
	MeanSentiment    float64         `gorm:"not null;default:0" json:"mean_sentiment"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"-"`
}

func (MentionAggregate) TableName() string {
	return "mention_aggregates"
}
