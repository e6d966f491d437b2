package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const usage = `Usage: migrate [flags] <command> [version]

Commands:
  up           apply all pending migrations
  down         roll back every migration
  to <N>       migrate up or down to version N
  force <N>    record version N without running it (clears a dirty flag)
  version      print the applied version

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	cfg := config.Load()

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Database.DSN, "dsn", cfg.Database.DSN, "Postgres DSN (default from POSTGRES_DSN)")
	flagSet.StringVar(&cfg.Database.MigrationsDir, "dir", cfg.Database.MigrationsDir, "directory holding the .sql migrations")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	log := logger.NewTestLogger(os.Stdout)
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	bunDB, err := bookingdb.OpenPostgres(context.Background(), cfg.Database, log)
	if err != nil {
		return err
	}
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	switch rest[0] {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "to", "force":
		if len(rest) < 2 {
			return fmt.Errorf("%s needs a version", rest[0])
		}
		version, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", rest[1], err)
		}
		if rest[0] == "to" {
			return runner.To(uint(version))
		}
		return runner.Force(int(version))
	case "version":
		version, dirty, ok, err := runner.Version()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
		return nil
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}
