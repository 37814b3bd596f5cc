// Package collaborators implements the external interfaces named out of the
// attested core: a Postgres audit log, an operator dispatcher heartbeat, an
// on-chain VRF operator-range lookup, and an operator-facing REST façade.
// None of these sit on the hot path of either attested algorithm.
package collaborators

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// AuditStore persists a durable record of attested clock updates and
// inference answers for out-of-band compliance review. Write failures are
// returned to the caller.
type AuditStore struct {
	db *sql.DB
}

// OpenAuditStore opens a Postgres connection pool through the lib/pq driver.
func OpenAuditStore(dsn string) (*AuditStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("collaborators: open audit store: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// RecordClockUpdate appends one VLC update event.
func (s *AuditStore) RecordClockUpdate(ctx context.Context, requestID string, nodeID uint64, digest []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clock_updates (request_id, node_id, digest, recorded_at) VALUES ($1, $2, $3, $4)`,
		requestID, nodeID, digest, at)
	if err != nil {
		return fmt.Errorf("collaborators: record clock update: %w", err)
	}
	return nil
}

// RecordInference appends one attested inference event.
func (s *AuditStore) RecordInference(ctx context.Context, requestID, modelName string, selected bool, answerDigest []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inference_answers (request_id, model_name, selected, answer_digest, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		requestID, modelName, selected, answerDigest, at)
	if err != nil {
		return fmt.Errorf("collaborators: record inference answer: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
