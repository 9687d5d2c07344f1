package sqlite

// schemaVersion is bumped whenever migrations below change. The schema
// manager (applyMigrations) keys idempotent creation off this version
// table, matching spec.md §6 ("inter-version migrations are applied by
// a schema manager keyed on a version table").
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS items (
		id               TEXT PRIMARY KEY,
		parent_id        TEXT REFERENCES items(id),
		depth            INTEGER NOT NULL,
		title            TEXT NOT NULL,
		summary          TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		role             TEXT NOT NULL,
		status_label     TEXT NOT NULL DEFAULT '',
		previous_role    TEXT NOT NULL DEFAULT '',
		priority         TEXT NOT NULL,
		complexity       INTEGER NOT NULL,
		requires_verification INTEGER NOT NULL DEFAULT 0,
		metadata         TEXT NOT NULL DEFAULT '',
		tags             TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		modified_at      TEXT NOT NULL,
		role_changed_at  TEXT NOT NULL,
		version          INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_role ON items(role)`,
	`CREATE INDEX IF NOT EXISTS idx_items_priority ON items(priority)`,
	`CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_items_modified ON items(modified_at)`,

	`CREATE TABLE IF NOT EXISTS dependencies (
		id           TEXT PRIMARY KEY,
		from_item_id TEXT NOT NULL REFERENCES items(id),
		to_item_id   TEXT NOT NULL REFERENCES items(id),
		type         TEXT NOT NULL,
		unblock_at   TEXT NOT NULL DEFAULT '',
		UNIQUE(from_item_id, to_item_id, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deps_from ON dependencies(from_item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deps_to ON dependencies(to_item_id)`,

	`CREATE TABLE IF NOT EXISTS notes (
		id          TEXT PRIMARY KEY,
		item_id     TEXT NOT NULL REFERENCES items(id),
		key         TEXT NOT NULL,
		role        TEXT NOT NULL,
		body        TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		UNIQUE(item_id, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id)`,

	`CREATE TABLE IF NOT EXISTS role_transitions (
		id              TEXT PRIMARY KEY,
		entity_id       TEXT NOT NULL,
		entity_type     TEXT NOT NULL,
		from_role       TEXT NOT NULL,
		to_role         TEXT NOT NULL,
		from_status     TEXT NOT NULL DEFAULT '',
		to_status       TEXT NOT NULL DEFAULT '',
		transitioned_at TEXT NOT NULL,
		trigger         TEXT NOT NULL,
		summary         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_entity ON role_transitions(entity_id)`,
}
