package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

const defaultAuditTable = "audit_logs"

// Repository writes audit logs.
type Repository struct {
	db     *sql.DB
	table  string
	logger *log.Logger
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithLogger reports write failures that callers choose to ignore.
func WithLogger(logger *log.Logger) RepositoryOption {
	return func(r *Repository) {
		r.logger = logger
	}
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	if db == nil {
		return nil
	}
	repo := &Repository{db: db, table: defaultAuditTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, actor, role, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, r.table)
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil && r.logger != nil {
		r.logger.Printf("audit: write failed: action=%s resource=%s/%s err=%v", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
	return err
}
