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

// Groups implements repository.GroupRepository.
type Groups struct {
	db *DB
}

// Groups returns the group repository view of the database.
func (db *DB) Groups() *Groups {
	return &Groups{db: db}
}

var _ repository.GroupRepository = (*Groups)(nil)

const groupColumns = `id, name, created_by, invite_code, members, active_accusation, created_at`

// Create inserts a new group. The invite code must already be set by the
// service layer; the UNIQUE constraint backstops collisions.
func (r *Groups) Create(ctx context.Context, group *model.Group) error {
	group.ID = xid.New().String()
	group.CreatedAt = time.Now().UTC()

	members, err := marshalJSON(emptySlice(group.Members))
	if err != nil {
		return err
	}
	accusation, err := marshalAccusation(group.ActiveAccusation)
	if err != nil {
		return err
	}

	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.CreatedBy, group.InviteCode,
		members, accusation, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating group: %w", err)
	}
	return nil
}

// GetByID retrieves a single group by id.
func (r *Groups) GetByID(ctx context.Context, id string) (*model.Group, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("group", id)
		}
		return nil, fmt.Errorf("sqlite: getting group %s: %w", id, err)
	}
	return group, nil
}

// GetByInviteCode looks a group up by its invite code.
func (r *Groups) GetByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE invite_code = ?`, code)
	group, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("group with invite code", code)
		}
		return nil, fmt.Errorf("sqlite: getting group by invite code: %w", err)
	}
	return group, nil
}

// Mutate applies fn to the stored group inside a write transaction.
// The vote map and the accusation slot always commit together, which is what
// makes the at-most-one-accusation rule hold under concurrent accusers.
func (r *Groups) Mutate(ctx context.Context, id string, fn func(*model.Group) error) (*model.Group, error) {
	var out *model.Group
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
		group, err := scanGroup(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperror.NotFound("group", id)
			}
			return fmt.Errorf("sqlite: getting group %s: %w", id, err)
		}

		if err := fn(group); err != nil {
			return err
		}

		members, err := marshalJSON(emptySlice(group.Members))
		if err != nil {
			return err
		}
		accusation, err := marshalAccusation(group.ActiveAccusation)
		if err != nil {
			return err
		}

		// Name, members and the accusation slot are the mutable fields;
		// invite_code is immutable once assigned and deliberately absent here.
		_, err = tx.ExecContext(ctx,
			`UPDATE groups SET name = ?, members = ?, active_accusation = ? WHERE id = ?`,
			group.Name, members, accusation, group.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating group %s: %w", id, err)
		}
		out = group
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func marshalAccusation(a *model.Accusation) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalJSON(a)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func scanGroup(row scanner) (*model.Group, error) {
	var (
		group      model.Group
		members    string
		accusation sql.NullString
	)
	err := row.Scan(
		&group.ID, &group.Name, &group.CreatedBy, &group.InviteCode,
		&members, &accusation, &group.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(members, &group.Members); err != nil {
		return nil, err
	}
	if accusation.Valid {
		var a model.Accusation
		if err := unmarshalJSON(accusation.String, &a); err != nil {
			return nil, err
		}
		group.ActiveAccusation = &a
	}
	return &group, nil
}
