package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var ErrNotFound = domain.ErrNotFound

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SharedDB is the Postgres backed notification store.
type SharedDB struct {
	db     *pgxpool.Pool
	config *models.EnvConfig
}

func Connect(ctx context.Context, config *models.EnvConfig) (*SharedDB, error) {
	db, err := pgxpool.Connect(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to postgres: %w", err)
	}
	return &SharedDB{
		db,
		config,
	}, nil
}

func (sdb *SharedDB) Close() {
	sdb.db.Close()
}

func (sdb *SharedDB) Ping(ctx context.Context) error {
	return sdb.db.Ping(ctx)
}

func execTx(ctx context.Context, db DBTX, txFunc func(context.Context, pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	err = txFunc(ctx, tx)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
