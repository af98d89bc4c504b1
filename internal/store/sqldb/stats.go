package sqldb

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

func (d *DB) Statistics(ctx context.Context) (*chat.Statistics, error) {
	cutoff := time.Now().Add(-store.RecentWindow).UnixNano()

	var (
		stats        chat.Statistics
		withMessages int
	)
	counters := []struct {
		query string
		args  []any
		dest  *int
	}{
		{`SELECT COUNT(*) FROM conversation`, nil, &stats.TotalConversations},
		{`SELECT COUNT(*) FROM message`, nil, &stats.TotalMessages},
		{`SELECT COUNT(*) FROM conversation WHERE updated_ts >= ` + d.ph(1), []any{cutoff}, &stats.RecentConversations},
		{`SELECT COUNT(DISTINCT conversation_id) FROM message`, nil, &withMessages},
	}
	for _, c := range counters {
		if err := d.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, errors.Wrap(err, "failed to compute statistics")
		}
	}

	if withMessages > 0 {
		stats.AvgMessagesPerConversation = store.RoundAverage(float64(stats.TotalMessages) / float64(withMessages))
	}
	return &stats, nil
}
