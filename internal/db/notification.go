package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/pgxscan"
	"github.com/jackc/pgx/v4"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

var _ domain.Store = (*SharedDB)(nil)

var notificationCols = []string{
	"id",
	"from_id",
	"to_id",
	"category",
	"category_id",
	"extra_title",
	"extra_content",
	"url",
	"read",
	"stack_id",
	"created_at",
	"updated_at",
}

var insertCols = []string{
	"from_id",
	"to_id",
	"category",
	"category_id",
	"extra_title",
	"extra_content",
	"url",
	"stack_id",
}

func insertValues(n models.Notification) []interface{} {
	return []interface{}{
		n.FromID,
		n.ToID,
		int(n.Category),
		n.CategoryID,
		n.ExtraTitle,
		n.ExtraContent,
		n.URL,
		n.StackID,
	}
}

// templateTable maps a kind to the lookup table holding its templates.
func templateTable(kind models.Kind) string {
	if kind == models.KindBroadcast {
		return "notification_broadcasts"
	}
	return "notification_categories"
}

func (sdb *SharedDB) Find(ctx context.Context, id int64) (*models.Notification, error) {
	sql, args, _ := psql.
		Select(notificationCols...).
		From("user_notifications").
		Where(sq.Eq{"id": id}).
		ToSql()

	n := &models.Notification{}
	err := pgxscan.Get(ctx, sdb.db, n, sql, args...)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("finding notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding notification %d: %w", id, err)
	}
	return n, nil
}

func (sdb *SharedDB) ReadOne(ctx context.Context, id int64) (int64, error) {
	sql, args, _ := psql.
		Update("user_notifications").
		Set("read", true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()

	tag, err := sdb.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("reading notification %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (sdb *SharedDB) ReadAll(ctx context.Context, toID int64) (int64, error) {
	sql, args, _ := psql.
		Update("user_notifications").
		Set("read", true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"to_id": toID, "read": false}).
		ToSql()

	tag, err := sdb.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("reading notifications of user %d: %w", toID, err)
	}
	return tag.RowsAffected(), nil
}

func (sdb *SharedDB) Delete(ctx context.Context, id int64) (int64, error) {
	sql, args, _ := psql.
		Delete("user_notifications").
		Where(sq.Eq{"id": id}).
		ToSql()

	tag, err := sdb.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (sdb *SharedDB) DeleteAll(ctx context.Context, toID int64) (int64, error) {
	sql, args, _ := psql.
		Delete("user_notifications").
		Where(sq.Eq{"to_id": toID}).
		ToSql()

	tag, err := sdb.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting notifications of user %d: %w", toID, err)
	}
	return tag.RowsAffected(), nil
}

func (sdb *SharedDB) GetAll(ctx context.Context, toID int64) ([]models.Notification, error) {
	notifs := []models.Notification{}
	sql, args, _ := psql.
		Select(notificationCols...).
		From("user_notifications").
		Where(sq.Eq{"to_id": toID}).
		OrderBy("id DESC").
		ToSql()

	err := pgxscan.Select(ctx, sdb.db, &notifs, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of user %d: %w", toID, err)
	}
	return notifs, nil
}

func (sdb *SharedDB) GetNotRead(ctx context.Context, toID int64) ([]int64, error) {
	ids := []int64{}
	sql, args, _ := psql.
		Select("id").
		From("user_notifications").
		Where(sq.Eq{"to_id": toID, "read": false}).
		OrderBy("id DESC").
		ToSql()

	err := pgxscan.Select(ctx, sdb.db, &ids, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications of user %d: %w", toID, err)
	}
	return ids, nil
}

func insertNotification(ctx context.Context, db DBTX, n models.Notification) (int64, error) {
	sql, args, _ := psql.
		Insert("user_notifications").
		Columns(insertCols...).
		Values(insertValues(n)...).
		Suffix("RETURNING id").
		ToSql()

	var id int64
	err := db.QueryRow(ctx, sql, args...).Scan(&id)
	return id, err
}

func (sdb *SharedDB) StoreSingle(ctx context.Context, n models.Notification) (int64, error) {
	id, err := insertNotification(ctx, sdb.db, n)
	if err != nil {
		return 0, fmt.Errorf("storing notification for user %d: %w", n.ToID, err)
	}
	return id, nil
}

func (sdb *SharedDB) StoreMultiple(ctx context.Context, ns []models.Notification) ([]int64, error) {
	ids := make([]int64, 0, len(ns))
	if len(ns) == 0 {
		return ids, nil
	}
	err := execTx(ctx, sdb.db, func(ctx context.Context, tx pgx.Tx) error {
		for _, n := range ns {
			id, err := insertNotification(ctx, tx, n)
			if err != nil {
				return fmt.Errorf("storing notification for user %d: %w", n.ToID, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (sdb *SharedDB) ListTemplates(ctx context.Context, kind models.Kind) ([]models.Template, error) {
	templates := []models.Template{}
	sql, args, _ := psql.
		Select("id", "name", "title", "content").
		From(templateTable(kind)).
		OrderBy("id").
		ToSql()

	err := pgxscan.Select(ctx, sdb.db, &templates, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s templates: %w", kind, err)
	}
	for i := range templates {
		templates[i].Kind = kind
	}
	return templates, nil
}
