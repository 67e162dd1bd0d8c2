package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"typestake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository stores signer, login and duel audit entries in audit_logs.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an entry. The entry is durable once this returns nil, which
// the signer relies on before releasing a signature.
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	var createdAt interface{}
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO audit_logs (actor, action, category, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))
		RETURNING id, created_at`,
		entry.Actor, entry.Action, entry.Category, raw, entry.IP, entry.UserAgent, createdAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// List returns entries matching f, newest first.
func (r *AuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Actor != "" {
		add("actor = ?", f.Actor)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.DuelID != 0 {
		add("details->>'duel_id' = ?", strconv.FormatUint(f.DuelID, 10))
	}

	q := `SELECT id, actor, action, category, details, ip, user_agent, created_at FROM audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.PageSize())
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.AuditLog, error) {
		var (
			e   domain.AuditLog
			raw []byte
		)
		if err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.Category, &raw, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Details); err != nil {
			e.Details = map[string]interface{}{}
		}
		return &e, nil
	})
}
