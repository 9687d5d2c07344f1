package sqlite

import (
	"context"
	"fmt"

	"github.com/ravelhq/ravel/internal/idgen"
	"github.com/ravelhq/ravel/internal/types"
)

const noteColumns = `id, item_id, key, role, body, created_at, modified_at`

func scanNote(row interface{ Scan(...any) error }) (*types.Note, error) {
	var n types.Note
	var role, createdAt, modifiedAt string
	if err := row.Scan(&n.ID, &n.ItemID, &n.Key, &role, &n.Body, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	n.Role = types.Role(role)
	n.CreatedAt = parseTime(createdAt)
	n.ModifiedAt = parseTime(modifiedAt)
	return &n, nil
}

// UpsertNote matches on (itemId, key): creating a row with
// createdAt=modifiedAt=now when absent, else overwriting body, role,
// and modifiedAt, following the teacher's SetConfig upsert-by-key
// pattern (internal/storage/sqlite/config.go).
func (s *Storage) UpsertNote(ctx context.Context, itemID, key string, role types.Role, body string) (*types.Note, error) {
	ctx, span := s.startSpan(ctx, "UpsertNote", itemID)
	note, err := s.upsertNote(ctx, itemID, key, role, body)
	endSpan(span, err)
	return note, err
}

func (s *Storage) upsertNote(ctx context.Context, itemID, key string, role types.Role, body string) (*types.Note, error) {
	existing, err := s.GetNote(ctx, itemID, key)
	now := nowRFC3339()
	if err != nil {
		if types.CodeOf(err) != types.ErrNotFound {
			return nil, err
		}
		id := idgen.New()
		_, err = s.conn(ctx).ExecContext(ctx, `
			INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, itemID, key, string(role), body, now, now)
		if err != nil {
			return nil, wrapDBError(fmt.Sprintf("insert note %s/%s", itemID, key), err)
		}
		return s.GetNote(ctx, itemID, key)
	}

	effectiveRole := role
	if effectiveRole == "" {
		effectiveRole = existing.Role
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		UPDATE notes SET body = ?, role = ?, modified_at = ? WHERE id = ?
	`, body, string(effectiveRole), now, existing.ID)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("update note %s/%s", itemID, key), err)
	}
	return s.GetNote(ctx, itemID, key)
}

// DeleteNote removes a note by id.
func (s *Storage) DeleteNote(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteNote", id)
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = types.NotFound("note", id)
		}
	}
	if err != nil {
		if _, ok := err.(*types.Error); !ok {
			err = wrapDBError("delete note", err)
		}
	}
	endSpan(span, err)
	return err
}

// GetNote loads a note by its (itemId, key) pair.
func (s *Storage) GetNote(ctx context.Context, itemID, key string) (*types.Note, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE item_id = ? AND key = ?`, itemID, key)
	note, err := scanNote(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get note %s/%s", itemID, key), err)
	}
	return note, nil
}

// ListNotes returns every note attached to itemID.
func (s *Storage) ListNotes(ctx context.Context, itemID string) ([]*types.Note, error) {
	ctx, span := s.startSpan(ctx, "ListNotes", itemID)
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE item_id = ? ORDER BY key ASC`, itemID)
	if err != nil {
		err = wrapDBError("list notes", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	var out []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			endSpan(span, err)
			return nil, wrapDBError("scan note", err)
		}
		out = append(out, n)
	}
	endSpan(span, rows.Err())
	return out, rows.Err()
}
