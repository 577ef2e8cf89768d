package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/mind-engage/mindengage-passcut/internal/config"
	"github.com/mind-engage/mindengage-passcut/internal/db"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/release"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
	syncx "github.com/mind-engage/mindengage-passcut/internal/sync"
)

type rootConfig struct {
	driver   string
	dsn      string
	siteID   string
	defaults release.Settings
}

func (c *rootConfig) runner(st *exam.SQLStore) *release.Runner {
	return release.NewRunner(st, c.defaults)
}

func (c *rootConfig) open(ctx context.Context) (*exam.SQLStore, *syncx.EventRepo, error) {
	dbh, err := db.Open(ctx, db.Driver(c.driver), c.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	return exam.NewSQLStore(dbh, c.driver), syncx.NewEventRepo(dbh, c.siteID), nil
}

func main() {
	cfg := rootConfig{defaults: release.FromConfig(config.FromEnv())}
	rootFlags := flag.NewFlagSet("passcutctl", flag.ExitOnError)
	rootFlags.StringVar(&cfg.driver, "db-driver", "sqlite", "database driver: sqlite or postgres")
	rootFlags.StringVar(&cfg.dsn, "db-dsn", "", "database DSN")
	rootFlags.StringVar(&cfg.siteID, "site-id", "local", "site id written to the event log")
	envPrefix := ff.WithEnvVarPrefix("PASSCUT")

	root := &ffcli.Command{
		ShortUsage: "passcutctl [flags] <subcommand>",
		FlagSet:    rootFlags,
		Options:    []ff.Option{envPrefix},
		Subcommands: []*ffcli.Command{
			readinessCmd(&cfg, envPrefix),
			runCmd(&cfg, envPrefix),
			rescoreCmd(&cfg, envPrefix),
			settingsCmd(&cfg, envPrefix),
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}
	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func readinessCmd(cfg *rootConfig, opts ...ff.Option) *ffcli.Command {
	fs := flag.NewFlagSet("passcutctl readiness", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id (0 = active exam)")
	return &ffcli.Command{
		Name:       "readiness",
		ShortUsage: "passcutctl readiness [-exam id]",
		ShortHelp:  "print the per-region release readiness without publishing",
		FlagSet:    fs,
		Options:    opts,
		Exec: func(ctx context.Context, _ []string) error {
			st, _, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			res, err := cfg.runner(st).Readiness(ctx, *examID)
			if err != nil {
				return err
			}
			renderReadiness(os.Stdout, res)
			return nil
		},
	}
}

func runCmd(cfg *rootConfig, opts ...ff.Option) *ffcli.Command {
	fs := flag.NewFlagSet("passcutctl run", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id (0 = active exam)")
	force := fs.Bool("force", false, "ignore the trigger mode")
	return &ffcli.Command{
		Name:       "run",
		ShortUsage: "passcutctl run [-exam id] [-force]",
		ShortHelp:  "evaluate readiness and publish the next release when ready",
		FlagSet:    fs,
		Options:    opts,
		Exec: func(ctx context.Context, _ []string) error {
			st, events, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			rn := cfg.runner(st)
			rn.Events = events
			res, err := rn.Run(ctx, release.Trigger{ExamID: *examID, Kind: release.TriggerCron, Force: *force})
			if err != nil {
				return err
			}
			renderReadiness(os.Stdout, res)
			printReason(os.Stdout, res)
			return nil
		},
	}
}

func rescoreCmd(cfg *rootConfig, opts ...ff.Option) *ffcli.Command {
	fs := flag.NewFlagSet("passcutctl rescore", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id")
	after := fs.Int64("after", 0, "resume after this submission id")
	event := fs.String("event", "", "rescore event id to record details under")
	batch := fs.Int("batch", rescore.DefaultBatchSize, "submissions per transaction")
	return &ffcli.Command{
		Name:       "rescore",
		ShortUsage: "passcutctl rescore -exam id [-event id] [-after id]",
		ShortHelp:  "recompute scores against the current answer key",
		LongHelp:   "Resumes an interrupted correction: pass the event and submission ids reported by the failed run as -event and -after.",
		FlagSet:    fs,
		Options:    opts,
		Exec: func(ctx context.Context, _ []string) error {
			if *examID <= 0 {
				return errors.New("-exam is required")
			}
			st, _, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			svc := rescore.NewService(st)
			svc.BatchSize = *batch
			svc.Notifier = rescore.NewNotifier(st)
			out, err := svc.Resume(ctx, *examID, *event, *after)
			fmt.Printf("processed=%d rescored=%d last_id=%d details_ranked=%d\n",
				out.Processed, len(out.Changes), out.LastID, out.DetailsRanked)
			return err
		},
	}
}

func settingsCmd(cfg *rootConfig, opts ...ff.Option) *ffcli.Command {
	fs := flag.NewFlagSet("passcutctl settings", flag.ExitOnError)
	return &ffcli.Command{
		Name:       "settings",
		ShortUsage: "passcutctl settings [key value]",
		ShortHelp:  "show the effective release settings or store one key",
		FlagSet:    fs,
		Options:    opts,
		Exec: func(ctx context.Context, args []string) error {
			st, _, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			switch len(args) {
			case 0:
			case 2:
				if err := st.PutSetting(ctx, args[0], args[1]); err != nil {
					return err
				}
			default:
				return flag.ErrHelp
			}
			s, err := cfg.runner(st).LoadSettings(ctx)
			if err != nil {
				return err
			}
			for _, k := range []string{release.KeyEnabled, release.KeyThresholdProfile, release.KeyReadyRatioProfile,
				release.KeyTriggerMode, release.KeyCheckInterval, release.KeyAutoNotice} {
				fmt.Printf("%-32s %s\n", k, s.Map()[k])
			}
			return nil
		},
	}
}
