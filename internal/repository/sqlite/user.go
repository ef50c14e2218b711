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

// Users implements repository.UserRepository on top of the shared connection.
type Users struct {
	db *DB
}

// Users returns the user repository view of the database.
func (db *DB) Users() *Users {
	return &Users{db: db}
}

// Compile-time check that *Users satisfies the repository interface.
var _ repository.UserRepository = (*Users)(nil)

const userColumns = `id, name, points, active_logo_id, inventory, active_powerups, group_ids, created_at, updated_at`

// Create inserts a new user. The caller's struct gets the generated id and
// timestamps filled in.
func (r *Users) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.ActiveLogoID == "" {
		user.ActiveLogoID = model.DefaultLogoID
	}

	inventory, err := marshalJSON(emptySlice(user.Inventory))
	if err != nil {
		return err
	}
	powerups, err := marshalJSON(emptySlice(user.ActivePowerups))
	if err != nil {
		return err
	}
	groupIDs, err := marshalJSON(emptySlice(user.GroupIDs))
	if err != nil {
		return err
	}

	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Points, user.ActiveLogoID,
		inventory, powerups, groupIDs,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a single user by id.
func (r *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// Mutate applies fn to the stored user inside a write transaction and
// persists the result. The read and the write share one transaction, so two
// concurrent Mutate calls on the same user serialize instead of losing an
// update — this is what keeps "two snipes both consume the last half_points
// use" impossible.
func (r *Users) Mutate(ctx context.Context, id string, fn func(*model.User) error) (*model.User, error) {
	var out *model.User
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		user, err := scanUser(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperror.NotFound("user", id)
			}
			return fmt.Errorf("sqlite: getting user %s: %w", id, err)
		}

		if err := fn(user); err != nil {
			return err
		}
		user.UpdatedAt = time.Now().UTC()

		inventory, err := marshalJSON(emptySlice(user.Inventory))
		if err != nil {
			return err
		}
		powerups, err := marshalJSON(emptySlice(user.ActivePowerups))
		if err != nil {
			return err
		}
		groupIDs, err := marshalJSON(emptySlice(user.GroupIDs))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users
			 SET name = ?, points = ?, active_logo_id = ?, inventory = ?, active_powerups = ?, group_ids = ?, updated_at = ?
			 WHERE id = ?`,
			user.Name, user.Points, user.ActiveLogoID,
			inventory, powerups, groupIDs, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user                          model.User
		inventory, powerups, groupIDs string
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Points, &user.ActiveLogoID,
		&inventory, &powerups, &groupIDs,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(inventory, &user.Inventory); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(powerups, &user.ActivePowerups); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(groupIDs, &user.GroupIDs); err != nil {
		return nil, err
	}
	return &user, nil
}

// emptySlice replaces a nil slice with an empty one so JSON columns store
// "[]" instead of "null".
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
