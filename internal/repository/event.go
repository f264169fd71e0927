package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// EventRepository writes the append-only settlement fact log. Events are
// recorded after the settlement transaction commits; a failed event write
// is logged and dropped, never propagated, so reporting can't break
// winner determination.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Record appends one event. payload is marshalled to JSONB.
func (r *EventRepository) Record(ctx context.Context, eventType string, roundID *uuid.UUID, userID *int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to encode settlement event")
		return
	}
	const query = `
		INSERT INTO settlement_events (round_id, user_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, roundID, userID, eventType, data); err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to record settlement event")
	}
}

// CountByType aggregates the fact log for the stats endpoint.
func (r *EventRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	const query = `
		SELECT event_type, COUNT(*)
		FROM settlement_events
		GROUP BY event_type
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}
	return counts, nil
}
