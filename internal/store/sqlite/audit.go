package sqlite

import (
	"context"

	"github.com/ravelhq/ravel/internal/idgen"
	"github.com/ravelhq/ravel/internal/types"
)

const transitionColumns = `id, entity_id, entity_type, from_role, to_role, from_status, to_status,
	transitioned_at, trigger, summary`

// RecordTransition appends an immutable audit row. Audit rows are
// append-only and never locked for read (spec.md §5).
func (s *Storage) RecordTransition(ctx context.Context, t *types.RoleTransition) error {
	ctx, span := s.startSpan(ctx, "RecordTransition", t.EntityID)
	if t.ID == "" {
		t.ID = idgen.New()
	}
	if t.TransitionedAt.IsZero() {
		t.TransitionedAt = parseTime(nowRFC3339())
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO role_transitions (`+transitionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.EntityID, string(t.EntityType), string(t.FromRole), string(t.ToRole),
		t.FromStatus, t.ToStatus, t.TransitionedAt.UTC().Format(_rfc3339nano), string(t.Trigger), t.Summary,
	)
	if err != nil {
		err = wrapDBError("record transition", err)
	}
	endSpan(span, err)
	return err
}

// ListTransitions returns every audit row for entityID, oldest first.
func (s *Storage) ListTransitions(ctx context.Context, entityID string) ([]*types.RoleTransition, error) {
	ctx, span := s.startSpan(ctx, "ListTransitions", entityID)
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+transitionColumns+` FROM role_transitions WHERE entity_id = ? ORDER BY transitioned_at ASC
	`, entityID)
	if err != nil {
		err = wrapDBError("list transitions", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()

	var out []*types.RoleTransition
	for rows.Next() {
		var t types.RoleTransition
		var transitionedAt string
		if err := rows.Scan(&t.ID, &t.EntityID, &t.EntityType, &t.FromRole, &t.ToRole,
			&t.FromStatus, &t.ToStatus, &transitionedAt, &t.Trigger, &t.Summary); err != nil {
			endSpan(span, err)
			return nil, wrapDBError("scan transition", err)
		}
		t.TransitionedAt = parseTime(transitionedAt)
		out = append(out, &t)
	}
	endSpan(span, rows.Err())
	return out, rows.Err()
}
