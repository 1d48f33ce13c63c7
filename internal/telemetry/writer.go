package telemetry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/metrics"
)

// Beacon is one page-view telemetry hit reported by the site frontend.
type Beacon struct {
	SessionID  string    `json:"session_id"`
	Path       string    `json:"path"`
	Referrer   string    `json:"referrer"`
	UserAgent  string    `json:"user_agent"`
	DurationMS int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BeaconWriter persists beacons into the analytics.page_beacon table.
// A nil pool disables the sink (beacons are counted but dropped).
type BeaconWriter struct {
	db     *pgxpool.Pool
	logger *zap.Logger
	source string
}

// NewBeaconWriter constructs a writer. source identifies the emitting service.
func NewBeaconWriter(db *pgxpool.Pool, logger *zap.Logger, source string) *BeaconWriter {
	return &BeaconWriter{
		db:     db,
		logger: logger,
		source: source,
	}
}

// Write inserts one beacon row.
func (w *BeaconWriter) Write(ctx context.Context, b *Beacon) error {
	if b == nil {
		return nil
	}
	if w.db == nil {
		metrics.BeaconWritesTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	const query = `
		INSERT INTO analytics.page_beacon (
			s_session_id,
			s_path,
			s_referrer,
			s_user_agent,
			n_duration_ms,
			dt_occurred,
			s_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`

	_, err := w.db.Exec(ctx, query,
		b.SessionID,
		b.Path,
		b.Referrer,
		b.UserAgent,
		b.DurationMS,
		b.OccurredAt,
		w.source,
	)
	if err != nil {
		metrics.BeaconWritesTotal.WithLabelValues("error").Inc()
		w.logger.Error("telemetry.beacon_write_failed",
			zap.String("session_id", b.SessionID),
			zap.String("path", b.Path),
			zap.Error(err),
		)
		return err
	}

	metrics.BeaconWritesTotal.WithLabelValues("ok").Inc()
	w.logger.Debug("telemetry.beacon_written",
		zap.String("session_id", b.SessionID),
		zap.String("path", b.Path),
		zap.Int64("duration_ms", b.DurationMS),
	)

	return nil
}
