package resultdb

// schemaVersion is the schema written by this build.
const schemaVersion = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL UNIQUE,
	model       TEXT NOT NULL,
	experiment  TEXT NOT NULL,
	variant     TEXT NOT NULL DEFAULT '',
	samples     INTEGER NOT NULL,
	likert      INTEGER NOT NULL,
	agreement   INTEGER NOT NULL,
	run_dir     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run         INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	pass        TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	yes         REAL,
	no          REAL,
	unk         REAL,
	bins        TEXT,
	agreement   REAL,
	answer      TEXT,
	UNIQUE(run, pass, item_id)
);

CREATE INDEX IF NOT EXISTS idx_scores_item ON scores(item_id);
`
