package sqlite

import (
	"context"
	"fmt"

	"github.com/ravelhq/ravel/internal/idgen"
	"github.com/ravelhq/ravel/internal/types"
)

const depColumns = `id, from_item_id, to_item_id, type, unblock_at`

func scanDependency(row interface{ Scan(...any) error }) (*types.Dependency, error) {
	var d types.Dependency
	var unblockAt string
	if err := row.Scan(&d.ID, &d.FromItemID, &d.ToItemID, &d.Type, &unblockAt); err != nil {
		return nil, err
	}
	d.UnblockAt = types.Role(unblockAt)
	return &d, nil
}

// CreateDependency inserts a single dependency edge. Callers (the
// dependency graph layer) are responsible for cycle/self-loop checks
// before calling this; the store only enforces the duplicate-edge
// uniqueness constraint at the schema level.
func (s *Storage) CreateDependency(ctx context.Context, dep *types.Dependency) error {
	ctx, span := s.startSpan(ctx, "CreateDependency", dep.ID)
	err := s.insertDependency(ctx, dep)
	endSpan(span, err)
	return err
}

// CreateDependencies bulk-inserts a batch of dependency edges inside a
// single transaction (the caller's, when one is already open on ctx).
func (s *Storage) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	ctx, span := s.startSpan(ctx, "CreateDependencies", "")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, d := range deps {
			if err := s.insertDependency(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	endSpan(span, err)
	return err
}

func (s *Storage) insertDependency(ctx context.Context, d *types.Dependency) error {
	if d.ID == "" {
		d.ID = idgen.New()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO dependencies (`+depColumns+`) VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.FromItemID, d.ToItemID, string(d.Type), string(d.UnblockAt))
	if err != nil {
		return wrapDBError(fmt.Sprintf("insert dependency %s->%s", d.FromItemID, d.ToItemID), err)
	}
	return nil
}

// DeleteDependency removes a single dependency edge by id.
func (s *Storage) DeleteDependency(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteDependency", id)
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = types.NotFound("dependency", id)
		}
	}
	if err != nil {
		if _, ok := err.(*types.Error); !ok {
			err = wrapDBError("delete dependency", err)
		}
	}
	endSpan(span, err)
	return err
}

// GetDependency loads a single dependency edge by id.
func (s *Storage) GetDependency(ctx context.Context, id string) (*types.Dependency, error) {
	ctx, span := s.startSpan(ctx, "GetDependency", id)
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+depColumns+` FROM dependencies WHERE id = ?`, id)
	dep, err := scanDependency(row)
	if err != nil {
		err = wrapDBError(fmt.Sprintf("get dependency %s", id), err)
	}
	endSpan(span, err)
	return dep, err
}

// ListDependenciesFrom returns every edge where itemID is the source.
func (s *Storage) ListDependenciesFrom(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	return s.listDependencies(ctx, "ListDependenciesFrom", `from_item_id = ?`, itemID)
}

// ListDependenciesTo returns every edge where itemID is the target.
func (s *Storage) ListDependenciesTo(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	return s.listDependencies(ctx, "ListDependenciesTo", `to_item_id = ?`, itemID)
}

// ListAllDependencies returns every dependency edge in the store.
func (s *Storage) ListAllDependencies(ctx context.Context) ([]*types.Dependency, error) {
	ctx, span := s.startSpan(ctx, "ListAllDependencies", "")
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+depColumns+` FROM dependencies`)
	if err != nil {
		err = wrapDBError("list all dependencies", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	out, err := scanDependencies(rows)
	endSpan(span, err)
	return out, err
}

func (s *Storage) listDependencies(ctx context.Context, op, where, arg string) ([]*types.Dependency, error) {
	ctx, span := s.startSpan(ctx, op, arg)
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+depColumns+` FROM dependencies WHERE `+where, arg)
	if err != nil {
		err = wrapDBError(op, err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	out, err := scanDependencies(rows)
	endSpan(span, err)
	return out, err
}

func scanDependencies(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*types.Dependency, error) {
	var out []*types.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
