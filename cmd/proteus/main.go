package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/proteus"
	"github.com/raterudder/proteus/pkg/schedule"
	"github.com/raterudder/proteus/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	pc := proteus.Configured()
	s := storage.Configured()

	op := lflag.String("operation", string(proteus.OpDashboardSnapshot), "Operation to run (see -list-operations)")
	listOps := lflag.Bool("list-operations", false, "Print the available operations and exit")
	showSchedule := lflag.Bool("schedule", false, "Print the upcoming steps of the active control plan instead of raw results")
	pollInterval := lflag.Duration("poll-interval", 0, "Repeat the operation at this interval until interrupted. 0 runs it once.")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	if *listOps {
		for _, o := range proteus.Operations() {
			procs, _ := o.Procedures()
			fmt.Printf("%s\t%v\n", o, procs)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger)

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := pc.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid proteus configuration", "error", err)
		os.Exit(1)
	}

	r := &runner{
		client:   pc.NewClient(),
		db:       s.Database,
		op:       proteus.Operation(*op),
		schedule: *showSchedule,
		out:      os.Stdout,
		now:      time.Now,
	}

	ctx, err := r.start(ctx, pc)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}

	if err := r.loop(ctx, *pollInterval); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "operation failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).DebugContext(ctx, "exited cleanly")
}

type runner struct {
	client   *proteus.Client
	db       storage.Database
	op       proteus.Operation
	schedule bool
	out      io.Writer
	now      func() time.Time
}

// start logs in and makes sure there is an inverter to talk to. The returned
// context logs the selected inverter with every message.
func (r *runner) start(ctx context.Context, pc *proteus.Config) (context.Context, error) {
	if _, err := r.op.Procedures(); err != nil {
		return ctx, err
	}

	sess, err := r.client.Login(ctx, pc.Credentials)
	if err != nil {
		return ctx, fmt.Errorf("failed to login: %w", err)
	}
	if !sess.Valid() {
		return ctx, errors.New("login succeeded but no session was returned")
	}

	target, err := r.client.UseFirstInverter(ctx)
	if err != nil {
		return ctx, err
	}
	return log.WithAttrs(ctx, slog.String("inverterID", target.InverterID)), nil
}

// loop runs the operation once, or every interval until ctx is done.
func (r *runner) loop(ctx context.Context, interval time.Duration) error {
	if err := r.runOnce(ctx); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				// keep polling, the next tick might succeed
				log.Ctx(ctx).ErrorContext(ctx, "poll failed", slog.Any("error", err))
			}
		}
	}
}

func (r *runner) runOnce(ctx context.Context) error {
	if r.schedule {
		return r.printSchedule(ctx)
	}

	if r.op == proteus.OpDashboardSnapshot {
		snap, err := r.client.DashboardSnapshot(ctx)
		if err != nil {
			return err
		}
		if r.db != nil {
			if err := r.db.SaveSnapshot(ctx, snap); err != nil {
				return fmt.Errorf("failed to save snapshot: %w", err)
			}
			log.Ctx(ctx).DebugContext(ctx, "saved snapshot", slog.Time("timestamp", snap.Timestamp))
		}
		return r.write(snap)
	}

	results, err := r.client.Run(ctx, r.op)
	if err != nil {
		return err
	}
	return r.write(results)
}

func (r *runner) printSchedule(ctx context.Context) error {
	results, err := r.client.ActiveControlPlan(ctx)
	if err != nil {
		return err
	}
	steps, err := schedule.FromResults(results)
	if err != nil {
		return err
	}
	return r.write(schedule.Upcoming(steps, r.now()))
}

func (r *runner) write(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
