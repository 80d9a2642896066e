package clickhouse

import (
	"context"
	"fmt"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

// MarketMetricStore implements storage.MarketMetricStore using ClickHouse.
// Points are append-only samples; the MergeTree table tolerates replays of
// the same run without enforcement.
type MarketMetricStore struct {
	conn *Conn
}

// NewMarketMetricStore creates a new MarketMetricStore.
func NewMarketMetricStore(conn *Conn) *MarketMetricStore {
	return &MarketMetricStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketMetricStore = (*MarketMetricStore)(nil)

// InsertBulk appends a batch of points.
func (s *MarketMetricStore) InsertBulk(ctx context.Context, points []*domain.MarketMetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_metrics (
			address, chain_id, timestamp_ms, tvl, volume_24h, implied_apy
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Address, p.ChainID, uint64(p.TimestampMs),
			p.TVL, p.Volume24h, p.ImpliedAPY,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAddress retrieves all points for an address, ordered by timestamp ASC.
func (s *MarketMetricStore) GetByAddress(ctx context.Context, address string) ([]*domain.MarketMetricPoint, error) {
	query := `
		SELECT address, chain_id, timestamp_ms, tvl, volume_24h, implied_apy
		FROM market_metrics
		WHERE address = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query by address: %w", err)
	}
	defer rows.Close()

	var points []*domain.MarketMetricPoint
	for rows.Next() {
		var p domain.MarketMetricPoint
		var timestampMs uint64

		err := rows.Scan(
			&p.Address, &p.ChainID, &timestampMs,
			&p.TVL, &p.Volume24h, &p.ImpliedAPY,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market metric row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market metric rows: %w", err)
	}

	return points, nil
}
