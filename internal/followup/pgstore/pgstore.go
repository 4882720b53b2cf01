// Package pgstore provides a PostgreSQL implementation of followup.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/nudge/internal/followup"
)

var tracer = otel.Tracer("github.com/linnemanlabs/nudge/internal/followup/pgstore")

//go:embed schema.sql
var schema string

// Store persists follow-up runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool stays owned
// by the caller; Close only releases it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const runColumns = `id, status, total_cases, owner_count, unresolved_owners,
	owner_filter, deliver, digest, created_at, completed_at, duration_s`

// Get retrieves a run by ID, intents included.
func (s *Store) Get(ctx context.Context, id string) (*followup.Run, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM followup_runs WHERE id = $1`
	r, err := s.scanRunRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}

	if err := s.loadIntents(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	return r, true, nil
}

// Put inserts or updates a run. Intents are replaced wholesale inside the
// same transaction so a half-written run is never observable.
func (s *Store) Put(ctx context.Context, r *followup.Run) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := s.upsertRun(ctx, tx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.replaceIntents(ctx, tx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) upsertRun(ctx context.Context, tx pgx.Tx, r *followup.Run) error {
	unresolvedJSON, err := json.Marshal(r.UnresolvedOwners)
	if err != nil {
		return fmt.Errorf("marshal unresolved owners: %w", err)
	}

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	query := `INSERT INTO followup_runs (
		id, status, total_cases, owner_count, unresolved_owners,
		owner_filter, deliver, digest, created_at, completed_at, duration_s
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (id) DO UPDATE SET
		status            = EXCLUDED.status,
		total_cases       = EXCLUDED.total_cases,
		owner_count       = EXCLUDED.owner_count,
		unresolved_owners = EXCLUDED.unresolved_owners,
		owner_filter      = EXCLUDED.owner_filter,
		deliver           = EXCLUDED.deliver,
		digest            = EXCLUDED.digest,
		completed_at      = EXCLUDED.completed_at,
		duration_s        = EXCLUDED.duration_s`

	_, err = tx.Exec(ctx, query,
		r.ID, string(r.Status), r.TotalCases, r.OwnerCount, unresolvedJSON,
		r.OwnerFilter, r.Deliver, r.Digest, r.CreatedAt, completedAt, r.Duration,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *Store) replaceIntents(ctx context.Context, tx pgx.Tx, r *followup.Run) error {
	if _, err := tx.Exec(ctx, `DELETE FROM followup_intents WHERE run_id = $1`, r.ID); err != nil {
		return fmt.Errorf("delete intents: %w", err)
	}

	for i := range r.Intents {
		intent := &r.Intents[i]

		recipientsJSON, err := json.Marshal(intent.Recipients)
		if err != nil {
			return fmt.Errorf("marshal recipients for %s: %w", intent.Owner, err)
		}
		casesJSON, err := json.Marshal(intent.TopCases)
		if err != nil {
			return fmt.Errorf("marshal cases for %s: %w", intent.Owner, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO followup_intents (run_id, owner_identity, recipients, top_cases, total_cases, generated_at, delivery, delivery_error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, intent.Owner, recipientsJSON, casesJSON, intent.TotalCases,
			intent.GeneratedAt, intent.Delivery, intent.DeliveryError,
		)
		if err != nil {
			return fmt.Errorf("insert intent for %s: %w", intent.Owner, err)
		}
	}
	return nil
}

// loadIntents reads intent rows onto a Run, owner order.
func (s *Store) loadIntents(ctx context.Context, r *followup.Run) error {
	rows, err := s.pool.Query(ctx,
		`SELECT owner_identity, recipients, top_cases, total_cases, generated_at, delivery, delivery_error
		 FROM followup_intents WHERE run_id = $1 ORDER BY owner_identity`,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	var intents []followup.NotificationIntent
	for rows.Next() {
		var (
			intent         followup.NotificationIntent
			recipientsJSON []byte
			casesJSON      []byte
		)
		if err := rows.Scan(
			&intent.Owner, &recipientsJSON, &casesJSON, &intent.TotalCases,
			&intent.GeneratedAt, &intent.Delivery, &intent.DeliveryError,
		); err != nil {
			return fmt.Errorf("scan intent: %w", err)
		}

		if err := json.Unmarshal(recipientsJSON, &intent.Recipients); err != nil {
			return fmt.Errorf("unmarshal recipients for %s: %w", intent.Owner, err)
		}
		if err := json.Unmarshal(casesJSON, &intent.TopCases); err != nil {
			return fmt.Errorf("unmarshal cases for %s: %w", intent.Owner, err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate intents: %w", err)
	}

	r.Intents = intents
	return nil
}

// scanRunRow scans a single row into a followup.Run (without intents).
// Returns (nil, nil) when no row is found.
func (s *Store) scanRunRow(row pgx.Row) (*followup.Run, error) {
	var (
		r              followup.Run
		status         string
		unresolvedJSON []byte
		completedAt    *time.Time
	)

	err := row.Scan(
		&r.ID, &status, &r.TotalCases, &r.OwnerCount, &unresolvedJSON,
		&r.OwnerFilter, &r.Deliver, &r.Digest, &r.CreatedAt, &completedAt, &r.Duration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Status = followup.Status(status)

	if completedAt != nil {
		r.CompletedAt = *completedAt
	}

	if err := json.Unmarshal(unresolvedJSON, &r.UnresolvedOwners); err != nil {
		return nil, fmt.Errorf("unmarshal unresolved owners: %w", err)
	}

	return &r, nil
}
