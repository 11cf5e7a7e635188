package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"

	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// gooseLogger adapts logger.Logger to the goose.Logger interface.
type gooseLogger struct {
	ctx context.Context
	log logger.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.log.Info(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies all pending PostgreSQL migrations.
func Migrate(ctx context.Context, dsn string, log logger.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return eris.Wrap(err, "postgres: open for migrations")
	}
	defer db.Close()

	goose.SetLogger(&gooseLogger{ctx: ctx, log: log})
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return eris.Wrap(err, "postgres: set goose dialect")
	}

	log.Info(ctx, "running PostgreSQL migrations (up)")
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return eris.Wrap(err, "postgres: run migrations")
	}
	log.Info(ctx, "PostgreSQL migrations completed")
	return nil
}
