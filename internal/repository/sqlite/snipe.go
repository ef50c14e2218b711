package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/repository"
)

// Snipes implements repository.SnipeRepository.
type Snipes struct {
	db *DB
}

// Snipes returns the snipe repository view of the database.
func (db *DB) Snipes() *Snipes {
	return &Snipes{db: db}
}

var _ repository.SnipeRepository = (*Snipes)(nil)

const snipeColumns = `id, sniper_id, target_id, group_id, photo_ref, status, points, powerups, created_at`

// Create inserts a new snipe in pending state with a server-assigned
// creation timestamp. The timestamp comes from the server clock, never the
// client, so the dodge window cannot be gamed by skewed devices.
func (r *Snipes) Create(ctx context.Context, snipe *model.Snipe) error {
	snipe.ID = xid.New().String()
	snipe.Status = model.SnipePending
	if snipe.Timestamp.IsZero() {
		snipe.Timestamp = time.Now().UTC()
	}

	powerups, err := marshalJSON(snipe.Powerups)
	if err != nil {
		return err
	}

	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO snipes (`+snipeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snipe.ID, snipe.SniperID, snipe.TargetID, snipe.GroupID, snipe.PhotoRef,
		snipe.Status, snipe.Points, powerups, snipe.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snipe: %w", err)
	}
	return nil
}

// GetByID retrieves a single snipe by id.
func (r *Snipes) GetByID(ctx context.Context, id string) (*model.Snipe, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+snipeColumns+` FROM snipes WHERE id = ?`, id)
	snipe, err := scanSnipe(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snipe", id)
		}
		return nil, fmt.Errorf("sqlite: getting snipe %s: %w", id, err)
	}
	return snipe, nil
}

// ListPendingForTarget returns the open snipes aimed at a user, oldest first.
func (r *Snipes) ListPendingForTarget(ctx context.Context, targetID string) ([]model.Snipe, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+snipeColumns+` FROM snipes
		 WHERE target_id = ? AND status = ?
		 ORDER BY created_at ASC`,
		targetID, model.SnipePending,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pending snipes: %w", err)
	}
	defer rows.Close()
	return collectSnipes(rows)
}

// ListExpiredPending returns pending snipes created at or before cutoff.
func (r *Snipes) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]model.Snipe, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+snipeColumns+` FROM snipes
		 WHERE status = ? AND created_at <= ?
		 ORDER BY created_at ASC`,
		model.SnipePending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing expired snipes: %w", err)
	}
	defer rows.Close()
	return collectSnipes(rows)
}

// Resolve transitions a pending snipe to a terminal status.
//
// The WHERE clause doubles as the state machine guard: the UPDATE only
// matches while status is still pending, so under concurrent dodge/timeout
// callers exactly one UPDATE affects a row. Everyone else sees zero rows
// affected and gets ErrAlreadyResolved — the required loser-observes-no-op
// behaviour, with no read-then-write race to worry about.
func (r *Snipes) Resolve(ctx context.Context, id string, status model.SnipeStatus) error {
	if status != model.SnipeDodged && status != model.SnipeCompleted {
		return apperror.ValidationFailed("status", fmt.Sprintf("%q is not a terminal snipe status", status))
	}

	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE snipes SET status = ? WHERE id = ? AND status = ?`,
		status, id, model.SnipePending,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resolving snipe %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		// Either the snipe doesn't exist or it already left pending.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperror.New(apperror.ErrAlreadyResolved, "snipe %s is already resolved", id)
	}
	return nil
}

func scanSnipe(row scanner) (*model.Snipe, error) {
	var (
		snipe    model.Snipe
		powerups string
	)
	err := row.Scan(
		&snipe.ID, &snipe.SniperID, &snipe.TargetID, &snipe.GroupID, &snipe.PhotoRef,
		&snipe.Status, &snipe.Points, &powerups, &snipe.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(powerups, &snipe.Powerups); err != nil {
		return nil, err
	}
	return &snipe, nil
}

func collectSnipes(rows *sql.Rows) ([]model.Snipe, error) {
	snipes := make([]model.Snipe, 0, 8)
	for rows.Next() {
		s, err := scanSnipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snipe row: %w", err)
		}
		snipes = append(snipes, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snipes: %w", err)
	}
	return snipes, nil
}
