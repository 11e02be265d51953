package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/RaikyD/isp-order-intake/internal/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Up applies every pending migration to the Postgres database at dsn.
func Up(dsn string) error {
	return run(dsn, func(db *sql.DB) error { return goose.Up(db, "migrations") })
}

// Status logs the applied/pending state of each migration.
func Status(dsn string) error {
	return run(dsn, func(db *sql.DB) error { return goose.Status(db, "migrations") })
}

func run(dsn string, fn func(*sql.DB) error) error {
	if dsn == "" {
		return fmt.Errorf("migrate: DB_STRING is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(db)
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.L().Fatalf(format, v...)
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.L().Infof(format, v...)
}
