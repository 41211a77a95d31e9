package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/pms/channelsync/internal/infrastructure/config"
	"github.com/pms/channelsync/internal/infrastructure/logger"
	"github.com/pms/channelsync/internal/infrastructure/migration"
	"go.uber.org/zap"
)

const usage = `pms-channelsync migrate

Usage:
  migrate [-path dir] [-log-level level] <command> [argument]

Commands:
  up                apply every pending migration
  down              roll back every migration
  step <n>          apply n migrations, negative n rolls back
  version           print the applied version
  force <version>   mark a version as applied after a failed run
  list              list the migrations embedded in the binary

The database is read from config.toml and PMS_DATABASE_* variables
(HOST, PORT, USER, PASSWORD, DBNAME, SSLMODE).`

var errUsage = errors.New("invalid usage")

type command func(m *migration.Migrator, log *zap.Logger, arg string) error

var commands = map[string]command{
	"up": func(m *migration.Migrator, _ *zap.Logger, _ string) error {
		return m.Up()
	},
	"down": func(m *migration.Migrator, _ *zap.Logger, _ string) error {
		return m.Down()
	},
	"step": func(m *migration.Migrator, _ *zap.Logger, arg string) error {
		n, err := intArg(arg)
		if err != nil {
			return err
		}
		return m.Steps(n)
	},
	"version": func(m *migration.Migrator, log *zap.Logger, _ string) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	},
	"force": func(m *migration.Migrator, log *zap.Logger, arg string) error {
		version, err := intArg(arg)
		if err != nil {
			return err
		}
		log.Warn("Forcing migration version", zap.Int("version", version))
		return m.Force(version)
	},
}

func main() {
	path := flag.String("path", "", "migrations directory, empty for the embedded set")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = func() { fmt.Fprintln(flag.CommandLine.Output(), usage) }
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.DateTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	err = run(log, *path, flag.Args())
	_ = log.Sync()
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	case err != nil:
		log.Error("Migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, path string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	name, arg := args[0], ""
	if len(args) > 1 {
		arg = args[1]
	}

	if name == "list" {
		names, err := migration.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, path, log)
	if err != nil {
		return err
	}
	defer m.Close()

	log.Info("Running migration command", zap.String("command", name), zap.String("path", path))
	return cmd(m, log, arg)
}

func intArg(arg string) (int, error) {
	if arg == "" {
		return 0, fmt.Errorf("%w: numeric argument required", errUsage)
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, arg)
	}
	return n, nil
}
