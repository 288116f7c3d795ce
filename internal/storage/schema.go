// Package storage provides download job persistence using SQLite.
package storage

// Schema definitions for the downloads database
const (
	// SchemaV1 is the initial database schema
	SchemaV1 = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT 'Unknown',
	uploader TEXT,
	duration INTEGER,
	quality TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	file_path TEXT,
	file_size INTEGER,
	error_message TEXT,
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);
CREATE INDEX IF NOT EXISTS idx_downloads_completed_at ON downloads(completed_at);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`
)

// Migrations represents all available migrations
var Migrations = []struct {
	Version int
	SQL     string
}{
	{
		Version: 1,
		SQL:     SchemaV1,
	},
}
