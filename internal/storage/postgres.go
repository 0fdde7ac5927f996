package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

// AuditEntry records one successful inference request.
type AuditEntry struct {
	RequestID   string
	ImageDigest string
	MediaType   string
	Width       int
	Height      int
	Predictions []model.Prediction
	Duration    time.Duration
	Cached      bool
}

// Labels returns the distinct labels of the entry in first-seen order.
func (e *AuditEntry) Labels() []string {
	labels := []string{}
	for _, p := range e.Predictions {
		if !slices.Contains(labels, p.Label) {
			labels = append(labels, p.Label)
		}
	}
	return labels
}

// PostgresAudit appends audit rows to PostgreSQL.
type PostgresAudit struct {
	db *sql.DB
}

const createAuditTable = `
	CREATE TABLE IF NOT EXISTS inference_audit (
		request_id       UUID PRIMARY KEY,
		image_digest     TEXT NOT NULL,
		media_type       TEXT NOT NULL,
		width            INTEGER NOT NULL,
		height           INTEGER NOT NULL,
		prediction_count INTEGER NOT NULL,
		labels           TEXT[] NOT NULL,
		duration_ms      BIGINT NOT NULL,
		cached           BOOLEAN NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

const insertAudit = `
	INSERT INTO inference_audit (
		request_id, image_digest, media_type, width, height,
		prediction_count, labels, duration_ms, cached
	) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
`

func NewPostgresAudit(databaseURL string) (*PostgresAudit, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &PostgresAudit{db: db}, nil
}

func (p *PostgresAudit) Record(ctx context.Context, entry AuditEntry) error {
	if entry.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}

	_, err := p.db.ExecContext(ctx, insertAudit,
		entry.RequestID,
		entry.ImageDigest,
		entry.MediaType,
		entry.Width,
		entry.Height,
		len(entry.Predictions),
		pq.Array(entry.Labels()),
		entry.Duration.Milliseconds(),
		entry.Cached,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry (request=%s): %w", entry.RequestID, err)
	}
	return nil
}

func (p *PostgresAudit) Close() error {
	return p.db.Close()
}
