package spike

import (
	"context"
	"sort"
	"time"

	"stockalert/internal/models"
	"stockalert/internal/repository"
)

// Alert flags a stock whose mention volume spiked day-over-day.
type Alert struct {
	EntityName    string  `json:"entity_name"`
	CurrentCount  int64   `json:"current_count"`
	BaselineCount int64   `json:"baseline_count"`
	Ratio         float64 `json:"ratio"`
}

// Detector is a pure read+compare over the mention store. No state is
// mutated; the same inputs always yield the same alerts.
type Detector struct {
	Repo repository.Repository
}

// Detect compares summed STOCK mention counts on currentDate against
// baselineDate across the given channels. Entities with a zero or missing
// baseline are excluded regardless of current volume; the day-over-day ratio
// is undefined for them. Alerts come back ordered by descending ratio, ties
// broken by descending current count.
func (d *Detector) Detect(ctx context.Context, currentDate, baselineDate time.Time, channels []string, ratioThreshold float64) ([]Alert, error) {
	kind := models.KindStock
	current, err := d.Repo.EntityRollup(ctx, repository.RollupParams{
		Date:     currentDate,
		Channels: channels,
		Kind:     &kind,
	})
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}
	baseline, err := d.Repo.EntityRollup(ctx, repository.RollupParams{
		Date:     baselineDate,
		Channels: channels,
		Kind:     &kind,
	})
	if err != nil {
		return nil, err
	}

	baseCounts := make(map[string]int64, len(baseline))
	for _, row := range baseline {
		baseCounts[row.EntityName] = row.TotalCount
	}

	var alerts []Alert
	for _, row := range current {
		base := baseCounts[row.EntityName]
		if base <= 0 {
			continue
		}
		ratio := float64(row.TotalCount) / float64(base)
		if ratio <= ratioThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			EntityName:    row.EntityName,
			CurrentCount:  row.TotalCount,
			BaselineCount: base,
			Ratio:         ratio,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Ratio != alerts[j].Ratio {
			return alerts[i].Ratio > alerts[j].Ratio
		}
		if alerts[i].CurrentCount != alerts[j].CurrentCount {
			return alerts[i].CurrentCount > alerts[j].CurrentCount
		}
		return alerts[i].EntityName < alerts[j].EntityName
	})
	return alerts, nil
}
