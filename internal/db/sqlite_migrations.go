package db

// migration is one step of the embedded SQLite schema.
type migration struct {
	version int
	sql     string
}

// sqliteMigrations mirrors migrations/*.sql for the SQLite dialect.
// Versions are sequential starting from 1.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_categories (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL UNIQUE,
	title   TEXT NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_broadcasts (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL UNIQUE,
	title   TEXT NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_notifications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id       INTEGER NOT NULL,
	to_id         INTEGER NOT NULL,
	category      INTEGER NOT NULL DEFAULT 0,
	category_id   INTEGER NOT NULL,
	extra_title   TEXT NOT NULL DEFAULT '',
	extra_content TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	read          INTEGER NOT NULL DEFAULT 0,
	stack_id      INTEGER,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS user_notifications_to_id_idx ON user_notifications (to_id, id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
INSERT INTO notification_categories (id, name, title, content) VALUES
	(1, 'follow', 'New follower', '{@user.name@} started following you'),
	(2, 'reply', 'New reply from {@user.name@}', '{@user.name@} replied: {@user.excerpt@}'),
	(3, 'mention', 'You were mentioned', '{@user.name@} mentioned you in {@user.thread.title@}');

INSERT INTO notification_broadcasts (id, name, title, content) VALUES
	(1, 'maintenance', 'Scheduled maintenance', 'The service will be unavailable on {@user.date@}'),
	(2, 'announcement', '{@user.title@}', '{@user.body@}');

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
