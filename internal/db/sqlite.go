package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	_ "modernc.org/sqlite"
)

var _ domain.Store = (*SQLiteStore)(nil)

var sqlite = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteStore is the single node notification store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL mode
// and applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Find(ctx context.Context, id int64) (*models.Notification, error) {
	query, args, _ := sqlite.
		Select(notificationCols...).
		From("user_notifications").
		Where(sq.Eq{"id": id}).
		ToSql()

	n := &models.Notification{}
	err := s.db.GetContext(ctx, n, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding notification %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ReadOne(ctx context.Context, id int64) (int64, error) {
	n, err := s.exec(ctx, sqlite.
		Update("user_notifications").
		Set("read", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return 0, fmt.Errorf("reading notification %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, toID int64) (int64, error) {
	n, err := s.exec(ctx, sqlite.
		Update("user_notifications").
		Set("read", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"to_id": toID, "read": false}))
	if err != nil {
		return 0, fmt.Errorf("reading notifications of user %d: %w", toID, err)
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (int64, error) {
	n, err := s.exec(ctx, sqlite.
		Delete("user_notifications").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return 0, fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, toID int64) (int64, error) {
	n, err := s.exec(ctx, sqlite.
		Delete("user_notifications").
		Where(sq.Eq{"to_id": toID}))
	if err != nil {
		return 0, fmt.Errorf("deleting notifications of user %d: %w", toID, err)
	}
	return n, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, toID int64) ([]models.Notification, error) {
	notifs := []models.Notification{}
	query, args, _ := sqlite.
		Select(notificationCols...).
		From("user_notifications").
		Where(sq.Eq{"to_id": toID}).
		OrderBy("id DESC").
		ToSql()

	if err := s.db.SelectContext(ctx, &notifs, query, args...); err != nil {
		return nil, fmt.Errorf("listing notifications of user %d: %w", toID, err)
	}
	return notifs, nil
}

func (s *SQLiteStore) GetNotRead(ctx context.Context, toID int64) ([]int64, error) {
	ids := []int64{}
	query, args, _ := sqlite.
		Select("id").
		From("user_notifications").
		Where(sq.Eq{"to_id": toID, "read": false}).
		OrderBy("id DESC").
		ToSql()

	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("listing unread notifications of user %d: %w", toID, err)
	}
	return ids, nil
}

func insertNotificationSQLite(ctx context.Context, ext sqlx.ExecerContext, n models.Notification) (int64, error) {
	now := time.Now().UTC()
	cols := append([]string{}, insertCols...)
	query, args, _ := sqlite.
		Insert("user_notifications").
		Columns(append(cols, "created_at", "updated_at")...).
		Values(append(insertValues(n), now, now)...).
		ToSql()

	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) StoreSingle(ctx context.Context, n models.Notification) (int64, error) {
	id, err := insertNotificationSQLite(ctx, s.db, n)
	if err != nil {
		return 0, fmt.Errorf("storing notification for user %d: %w", n.ToID, err)
	}
	return id, nil
}

func (s *SQLiteStore) StoreMultiple(ctx context.Context, ns []models.Notification) ([]int64, error) {
	ids := make([]int64, 0, len(ns))
	if len(ns) == 0 {
		return ids, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, n := range ns {
		id, err := insertNotificationSQLite(ctx, tx, n)
		if err != nil {
			return nil, fmt.Errorf("storing notification for user %d: %w", n.ToID, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing notifications: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, kind models.Kind) ([]models.Template, error) {
	templates := []models.Template{}
	query, args, _ := sqlite.
		Select("id", "name", "title", "content").
		From(templateTable(kind)).
		OrderBy("id").
		ToSql()

	if err := s.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, fmt.Errorf("listing %s templates: %w", kind, err)
	}
	for i := range templates {
		templates[i].Kind = kind
	}
	return templates, nil
}
