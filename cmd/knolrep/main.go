package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolrep/internal/config"
	"github.com/conorfennell/knolrep/internal/engine"
	"github.com/conorfennell/knolrep/internal/platform/logger"
	"github.com/conorfennell/knolrep/internal/storage"
)

const usage = `Usage: knolrep [flags] <command> [args]

Commands:
  card add <card> <folder>      register a card in a folder
  enroll <user> <card>          start scheduling a card (--deferred, --folder)
  grade <user> <card> <0-5>     record a review (--request-id)
  queue <user>                  list due cards (--folder, --limit)
  snooze <user> <card> <min>    postpone a card
  suspend <user> <card>         hide a card from queues
  resume <user> <card>          return a card to queues
  xp <user>                     show today's XP

Flags:
`

func main() {
	// 1. Define and parse command-line flags
	fs := pflag.NewFlagSet("knolrep", pflag.ExitOnError)
	config.RegisterFlags(fs)
	opts := commandOptions{}
	fs.BoolVar(&opts.deferred, "deferred", false, "enroll: first review five minutes from now")
	fs.StringVar(&opts.folder, "folder", "", "enroll/queue: folder id")
	fs.StringVar(&opts.requestID, "request-id", "", "grade: idempotency key")
	fs.IntVar(&opts.limit, "limit", 0, "queue: maximum cards to list")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	// 2. Load configuration
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knolrep: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knolrep: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Open the database
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.DB.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Debug("Database opened", "path", cfg.DB.Path)

	// 4. Build the engine
	loc, err := cfg.Engine.Location()
	if err != nil {
		log.Error("Invalid timezone", "timezone", cfg.Engine.Timezone, "error", err)
		os.Exit(1)
	}
	engineOpts := engine.Options{
		Policy:     cfg.Policy,
		Clock:      time.Now,
		Location:   loc,
		QueueLimit: cfg.Engine.QueueLimit,
		Logger:     log.With("component", "engine"),
	}
	if cfg.Engine.EnforceNewCap {
		engineOpts.EnrollGate = engine.DailyNewCapGate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := engine.New(db, db, engineOpts)
	if err != nil {
		log.Error("Invalid engine options", "error", err)
		os.Exit(1)
	}

	app := &cli{
		db:     db,
		engine: eng,
		out:    os.Stdout,
		opts:   opts,
	}

	// 5. Run the command
	if err := app.run(ctx, fs.Args()); err != nil {
		log.Error("Command failed", "command", fs.Arg(0), "error", err)
		fmt.Fprintf(os.Stderr, "knolrep: %v\n", err)
		stop()
		db.Close()
		log.Sync()
		os.Exit(1)
	}
}
