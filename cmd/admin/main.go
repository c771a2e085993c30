package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/config"
	"tsureben-backend/internal/database"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/repository"
	"tsureben-backend/internal/schedule"
	"tsureben-backend/internal/services"
)

type appContext struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

type MigrateCmd struct {
	Dir string `help:"Directory holding the SQL migrations." default:"migrations" type:"path"`
}

func (c *MigrateCmd) Run(app *appContext) error {
	return database.RunMigrations(app.pool, c.Dir)
}

type RollupCmd struct {
	Date string `help:"Compute as of this local date (YYYY-MM-DD). Defaults to today."`
}

func (c *RollupCmd) Run(app *appContext) error {
	loc := app.cfg.Location()
	now := time.Now()
	if c.Date != "" {
		d, err := time.ParseInLocation(schedule.DateFormat, c.Date, loc)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		now = d
	}

	rollup := services.NewRollup(
		repository.NewUserRepo(app.pool),
		repository.NewPomodoroLogRepo(app.pool),
		repository.NewSummaryRepo(app.pool),
		loc,
	)
	result, err := rollup.Run(context.Background(), now)
	if err != nil {
		return err
	}
	for _, w := range []string{models.WindowYesterday, models.WindowWeek, models.WindowMonth} {
		fmt.Printf("%-10s %d users\n", w, len(result[w]))
	}
	return nil
}

var CLI struct {
	LogLevel string `help:"Log level." default:"info" env:"LOG_LEVEL"`

	Migrate MigrateCmd `cmd:"" help:"Apply database migrations."`
	Rollup  RollupCmd  `cmd:"" help:"Recompute the yesterday/week/month study summaries."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tsureben-admin"),
		kong.Description("Maintenance commands for the tsureben backend"),
		kong.UsageOnError(),
	)

	if err := logger.Init(logger.Config{Level: CLI.LogLevel, Prefix: "admin"}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := ctx.Run(&appContext{cfg: cfg, pool: pool}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		pool.Close()
		os.Exit(1)
	}
}
