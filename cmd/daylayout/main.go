package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daylayout/internal/agenda"
	"daylayout/internal/capture"
	"daylayout/internal/config"
	appLog "daylayout/internal/log"
	"daylayout/internal/render"
	"daylayout/internal/schedule"
	"daylayout/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	print      bool
	date       string
	days       int
	width      int
	snapshot   bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("daylayout starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if !flags.debug {
		lvl, _ := appLog.ParseLevel(conf.LogLevel)
		appLog.SetLevel(lvl)
	}
	if err := schedule.Validate(conf.RefreshCron); err != nil {
		appLog.Error("invalid refresh schedule", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"show_all_day", conf.ShowAllDay,
		"ics_count", len(conf.ICS),
		"daily_status", len(conf.DailyStatus),
		"therapy", len(conf.Therapy),
		"max_columns", conf.Layout.MaxColumns,
		"saturation", conf.Layout.Saturation,
		"ordering", conf.Layout.Ordering,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder := &agenda.Builder{
		Sources:  agenda.SourcesFromConfig(conf),
		Location: conf.Location(),
		Options:  conf.LayoutOptions(),
	}

	if flags.print {
		if err := printView(ctx, builder, conf, flags); err != nil {
			appLog.Error("print failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, builder, conf, flags); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("daylayout exiting")
}

// printView builds one view and writes it to stdout.
func printView(ctx context.Context, b *agenda.Builder, conf *config.Config, flags flagConfig) error {
	day := time.Now().In(b.Location)
	if flags.date != "" {
		d, err := time.ParseInLocation(time.DateOnly, flags.date, b.Location)
		if err != nil {
			return fmt.Errorf("-date: %w", err)
		}
		day = d
	}
	days := flags.days
	if days <= 0 {
		days = conf.HorizonDays
	}

	view, err := b.Build(ctx, day, days)
	if err != nil {
		return err
	}
	fmt.Print(render.Text(view, render.TextOptions{Width: flags.width, ShowAllDay: conf.ShowAllDay}))
	return nil
}

// serve runs the HTTP server and the refresh schedule until ctx ends.
func serve(ctx context.Context, b *agenda.Builder, conf *config.Config, flags flagConfig) error {
	cache := agenda.NewCache(b, time.Minute, conf.HorizonDays)
	srv := web.NewServer(conf, cache)

	refresh := func(ctx context.Context) error {
		if err := cache.Refresh(ctx); err != nil {
			return err
		}
		if !flags.snapshot {
			return nil
		}
		opts := capture.Options{
			URL:        "http://" + conf.Listen + "/day",
			OutputPath: conf.SnapshotPath,
			Settle:     500 * time.Millisecond,
		}
		if conf.BasicAuth != nil {
			opts.Username = conf.BasicAuth.Username
			opts.Password = conf.BasicAuth.Password
		}
		return capture.SnapshotPNG(ctx, opts)
	}

	sched := schedule.New(b.Location)
	if err := sched.Every(conf.RefreshCron, "refresh", refresh); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	go sched.Run(ctx)

	// Warm the cache; the snapshot needs the server, which is starting above.
	go func() {
		if err := refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("initial refresh failed", err)
		}
	}()

	err := <-errCh
	if ctx.Err() != nil {
		appLog.Info("signal received, shut down")
	}
	return err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/daylayout/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.print, "print", false, "Print the laid-out agenda to stdout and exit")
	flag.StringVar(&cfg.date, "date", "", "First day for -print (YYYY-MM-DD, default today)")
	flag.IntVar(&cfg.days, "days", 0, "Number of days for -print (default horizon_days)")
	flag.IntVar(&cfg.width, "width", 80, "Line width for -print")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Write a PNG of /day to snapshot_path after every refresh")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
