package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/quota-guard/internal/audit"
)

//go:embed audit_schema.sql
var auditSchema string

// PostgresAuditStore is a PostgreSQL implementation of audit.Store.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditStore creates a new PostgreSQL-backed audit store.
func NewPostgresAuditStore(pool *pgxpool.Pool) *PostgresAuditStore {
	return &PostgresAuditStore{pool: pool}
}

// Migrate creates the audit tables when they do not exist yet.
func (p *PostgresAuditStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}

	return nil
}

func (p *PostgresAuditStore) SaveQuotaRejected(ctx context.Context, event *audit.QuotaRejectedEvent) error {
	query := `
		INSERT INTO quota_rejections
			(identifier, policy, max_requests, window_size, method, path, client_ip, reset_at, rejected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.pool.Exec(ctx, query,
		event.Identifier,
		event.Policy,
		event.Limit,
		event.Window,
		event.Method,
		event.Path,
		event.ClientIP,
		event.ResetAt,
		event.RejectedAt,
	)

	return err
}

// SaveWebhookReceived is idempotent on the webhook id, redelivered events are ignored.
func (p *PostgresAuditStore) SaveWebhookReceived(ctx context.Context, event *audit.WebhookReceivedEvent) error {
	query := `
		INSERT INTO webhook_receipts (webhook_id, topic, shop, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (webhook_id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query, event.WebhookID, event.Topic, event.Shop, event.ReceivedAt)

	return err
}

func (p *PostgresAuditStore) SaveExportRequested(ctx context.Context, event *audit.ExportRequestedEvent) error {
	query := `
		INSERT INTO export_requests (job_id, resource, shop, requested_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query, event.JobID, event.Resource, event.Shop, event.RequestedAt)

	return err
}

// CountRejections returns how many rejections were recorded for identifier.
func (p *PostgresAuditStore) CountRejections(ctx context.Context, identifier string) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM quota_rejections WHERE identifier = $1`, identifier,
	).Scan(&n)

	return n, err
}

var _ audit.Store = (*PostgresAuditStore)(nil)
