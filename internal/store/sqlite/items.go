package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ravelhq/ravel/internal/idgen"
	"github.com/ravelhq/ravel/internal/types"
)

const itemColumns = `id, parent_id, depth, title, summary, description, role, status_label,
	previous_role, priority, complexity, requires_verification, metadata, tags,
	created_at, modified_at, role_changed_at, version`

func scanItem(row interface{ Scan(...any) error }) (*types.WorkItem, error) {
	var (
		it                            types.WorkItem
		parentID, prevRole, statusLbl sql.NullString
		requiresVerif                 int
		tags                          string
		createdAt, modifiedAt, roleAt string
	)
	err := row.Scan(
		&it.ID, &parentID, &it.Depth, &it.Title, &it.Summary, &it.Description,
		&it.Role, &statusLbl, &prevRole, &it.Priority, &it.Complexity, &requiresVerif,
		&it.Metadata, &tags, &createdAt, &modifiedAt, &roleAt, &it.Version,
	)
	if err != nil {
		return nil, err
	}
	it.ParentID = parentID.String
	it.PreviousRole = types.Role(prevRole.String)
	it.StatusLabel = statusLbl.String
	it.RequiresVerification = requiresVerif != 0
	it.Tags = splitTags(tags)
	it.CreatedAt = parseTime(createdAt)
	it.ModifiedAt = parseTime(modifiedAt)
	it.RoleChangedAt = parseTime(roleAt)
	return &it, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// GetItem loads a single work item by id.
func (s *Storage) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "GetItem", id)
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		err = wrapDBError(fmt.Sprintf("get item %s", id), err)
	}
	endSpan(span, err)
	return item, err
}

// CreateItem inserts a single work item, assigning an id if absent.
func (s *Storage) CreateItem(ctx context.Context, item *types.WorkItem) error {
	ctx, span := s.startSpan(ctx, "CreateItem", item.ID)
	err := s.insertItem(ctx, item)
	endSpan(span, err)
	return err
}

// CreateItems bulk-inserts items one row at a time inside a single
// transaction (the caller's, when one is already open on ctx).
func (s *Storage) CreateItems(ctx context.Context, items []*types.WorkItem) error {
	ctx, span := s.startSpan(ctx, "CreateItems", "")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, it := range items {
			if err := s.insertItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
	endSpan(span, err)
	return err
}

func (s *Storage) insertItem(ctx context.Context, item *types.WorkItem) error {
	if item.ID == "" {
		item.ID = idgen.New()
	}
	if item.Version == 0 {
		item.Version = 1
	}
	now := nowRFC3339()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = parseTime(now)
	}
	if item.ModifiedAt.IsZero() {
		item.ModifiedAt = item.CreatedAt
	}
	if item.RoleChangedAt.IsZero() {
		item.RoleChangedAt = item.CreatedAt
	}

	var parentID any
	if item.ParentID != "" {
		parentID = item.ParentID
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, parentID, item.Depth, item.Title, item.Summary, item.Description,
		string(item.Role), item.StatusLabel, string(item.PreviousRole), string(item.Priority),
		item.Complexity, boolToInt(item.RequiresVerification), item.Metadata, joinTags(item.Tags),
		item.CreatedAt.UTC().Format(_rfc3339nano), item.ModifiedAt.UTC().Format(_rfc3339nano),
		item.RoleChangedAt.UTC().Format(_rfc3339nano), item.Version,
	)
	if err != nil {
		return wrapDBError(fmt.Sprintf("insert item %s", item.ID), err)
	}
	return nil
}

const _rfc3339nano = "2006-01-02T15:04:05.999999999Z07:00"

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpdateItem performs an optimistic-concurrency update gated on
// expectedVersion, bumping the stored version by one on success.
func (s *Storage) UpdateItem(ctx context.Context, item *types.WorkItem, expectedVersion int64) error {
	ctx, span := s.startSpan(ctx, "UpdateItem", item.ID)
	err := s.updateItem(ctx, item, expectedVersion)
	endSpan(span, err)
	return err
}

func (s *Storage) updateItem(ctx context.Context, item *types.WorkItem, expectedVersion int64) error {
	item.ModifiedAt = parseTime(nowRFC3339())
	newVersion := expectedVersion + 1

	var parentID any
	if item.ParentID != "" {
		parentID = item.ParentID
	}

	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE items SET
			parent_id = ?, depth = ?, title = ?, summary = ?, description = ?,
			role = ?, status_label = ?, previous_role = ?, priority = ?, complexity = ?,
			requires_verification = ?, metadata = ?, tags = ?,
			modified_at = ?, role_changed_at = ?, version = ?
		WHERE id = ? AND version = ?
	`,
		parentID, item.Depth, item.Title, item.Summary, item.Description,
		string(item.Role), item.StatusLabel, string(item.PreviousRole), string(item.Priority),
		item.Complexity, boolToInt(item.RequiresVerification), item.Metadata, joinTags(item.Tags),
		item.ModifiedAt.UTC().Format(_rfc3339nano), item.RoleChangedAt.UTC().Format(_rfc3339nano), newVersion,
		item.ID, expectedVersion,
	)
	if err != nil {
		return wrapDBError(fmt.Sprintf("update item %s", item.ID), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("check rows affected", err)
	}
	if rows == 0 {
		// Either the item doesn't exist, or the version didn't match.
		current, getErr := s.GetItem(ctx, item.ID)
		if getErr != nil {
			return types.NotFound("item", item.ID)
		}
		return types.NewError(types.ErrConflict, "item %s was modified concurrently", item.ID).
			WithData("currentVersion", current.Version)
	}
	item.Version = newVersion
	return nil
}

// DeleteItem removes a work item, optionally cascading to its subtree.
func (s *Storage) DeleteItem(ctx context.Context, id string, recursive bool) (*types.DeleteResult, error) {
	ctx, span := s.startSpan(ctx, "DeleteItem", id)
	result, err := s.deleteItem(ctx, id, recursive)
	endSpan(span, err)
	return result, err
}

func (s *Storage) deleteItem(ctx context.Context, id string, recursive bool) (*types.DeleteResult, error) {
	ids := []string{id}
	if recursive {
		descendants, err := s.collectDescendants(ctx, id)
		if err != nil {
			return nil, err
		}
		ids = append(descendants, ids...)
	} else {
		children, err := s.ListByParent(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(children) > 0 {
			return nil, types.Validation("item %s has %d children; delete recursively or reparent them first", id, len(children))
		}
	}

	result := &types.DeleteResult{}
	for _, itemID := range ids {
		if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM dependencies WHERE from_item_id = ? OR to_item_id = ?`, itemID, itemID); err != nil {
			return nil, wrapDBError("delete dependencies", err)
		}
		if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM notes WHERE item_id = ?`, itemID); err != nil {
			return nil, wrapDBError("delete notes", err)
		}
		res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID)
		if err != nil {
			return nil, wrapDBError("delete item", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.DeletedIDs = append(result.DeletedIDs, itemID)
		}
	}
	return result, nil
}

// collectDescendants returns every descendant id of root, deepest-first
// so deletion can proceed leaf-first without violating foreign keys.
func (s *Storage) collectDescendants(ctx context.Context, root string) ([]string, error) {
	var out []string
	frontier := []string{root}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			children, err := s.ListByParent(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				next = append(next, c.ID)
			}
		}
		out = append(next, out...) // prepend so deepest generation comes first
		frontier = next
	}
	return out, nil
}

// ListByParent returns the direct children of parentID.
func (s *Storage) ListByParent(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "ListByParent", parentID)
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE parent_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		err = wrapDBError("list by parent", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	endSpan(span, err)
	return items, err
}

func scanItems(rows *sql.Rows) ([]*types.WorkItem, error) {
	var out []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapDBError("scan item", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// FindRootItems returns every item with no parent.
func (s *Storage) FindRootItems(ctx context.Context) ([]*types.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "FindRootItems", "")
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE parent_id IS NULL ORDER BY created_at ASC`)
	if err != nil {
		err = wrapDBError("find root items", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	endSpan(span, err)
	return items, err
}

// FindAncestorChain returns id's ancestors, root-first, not including id
// itself.
func (s *Storage) FindAncestorChain(ctx context.Context, id string) ([]*types.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "FindAncestorChain", id)
	var chain []*types.WorkItem
	current := id
	for {
		item, err := s.GetItem(ctx, current)
		if err != nil {
			endSpan(span, err)
			return nil, err
		}
		if item.ParentID == "" {
			break
		}
		parent, err := s.GetItem(ctx, item.ParentID)
		if err != nil {
			endSpan(span, err)
			return nil, err
		}
		chain = append([]*types.WorkItem{parent}, chain...)
		current = parent.ID
	}
	endSpan(span, nil)
	return chain, nil
}

// CountChildrenByRole tallies the direct children of parentID by role;
// RSM uses this to decide whether all siblings have reached terminal.
func (s *Storage) CountChildrenByRole(ctx context.Context, parentID string) (types.RoleCounts, error) {
	ctx, span := s.startSpan(ctx, "CountChildrenByRole", parentID)
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT role, COUNT(*) FROM items WHERE parent_id = ? GROUP BY role`, parentID)
	if err != nil {
		err = wrapDBError("count children by role", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	counts := types.RoleCounts{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			endSpan(span, err)
			return nil, wrapDBError("scan role count", err)
		}
		counts[types.Role(role)] = n
	}
	endSpan(span, rows.Err())
	return counts, rows.Err()
}

// FindByFilters returns items matching f, sorted and paginated.
func (s *Storage) FindByFilters(ctx context.Context, f *types.SearchFilter) ([]*types.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "FindByFilters", "")
	query, args := buildFilterQuery(itemColumns, f, false)
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		err = wrapDBError("find by filters", err)
		endSpan(span, err)
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	endSpan(span, err)
	return items, err
}

// CountByFilters returns the unpaginated match count for f.
func (s *Storage) CountByFilters(ctx context.Context, f *types.SearchFilter) (int, error) {
	ctx, span := s.startSpan(ctx, "CountByFilters", "")
	query, args := buildFilterQuery("COUNT(*)", f, true)
	var n int
	err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n)
	if err != nil {
		err = wrapDBError("count by filters", err)
	}
	endSpan(span, err)
	return n, err
}

// buildFilterQuery assembles a parameterized SELECT over items for the
// given filter set. When forCount is true, ORDER BY/LIMIT/OFFSET are
// omitted.
func buildFilterQuery(selectCols string, f *types.SearchFilter, forCount bool) (string, []any) {
	var where []string
	var args []any

	if f.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *f.ParentID)
	}
	if f.Depth != nil {
		where = append(where, "depth = ?")
		args = append(args, *f.Depth)
	}
	if f.Role != nil {
		where = append(where, "role = ?")
		args = append(args, string(*f.Role))
	}
	if f.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, string(*f.Priority))
	}
	if len(f.Tags) > 0 {
		var tagClauses []string
		for _, t := range f.Tags {
			tagClauses = append(tagClauses, "(',' || tags || ',') LIKE ?")
			args = append(args, "%,"+t+",%")
		}
		where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if f.Query != "" {
		where = append(where, "(title LIKE ? OR summary LIKE ?)")
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	addWindow := func(col string, w types.TimeWindow) {
		if !w.After.IsZero() {
			where = append(where, col+" >= ?")
			args = append(args, w.After.UTC().Format(_rfc3339nano))
		}
		if !w.Before.IsZero() {
			where = append(where, col+" <= ?")
			args = append(args, w.Before.UTC().Format(_rfc3339nano))
		}
	}
	addWindow("created_at", f.Created)
	addWindow("modified_at", f.Modified)
	addWindow("role_changed_at", f.RoleChanged)

	query := "SELECT " + selectCols + " FROM items"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if forCount {
		return query, args
	}

	query += " ORDER BY " + orderByClause(f.SortBy, f.SortDir)

	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
		if f.Offset > 0 {
			query += " OFFSET " + strconv.Itoa(f.Offset)
		}
	}
	return query, args
}

func orderByClause(field types.SortField, dir types.SortDir) string {
	col := "created_at"
	switch field {
	case types.SortTitle:
		col = "title"
	case types.SortPriority:
		col = "priority"
	case types.SortComplexity:
		col = "complexity"
	case types.SortCreatedAt:
		col = "created_at"
	case types.SortModifiedAt:
		col = "modified_at"
	}
	direction := "ASC"
	if dir == types.SortDesc {
		direction = "DESC"
	}
	return col + " " + direction
}
