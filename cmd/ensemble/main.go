package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ensemble/internal/capture"
	"ensemble/internal/catalog"
	"ensemble/internal/config"
	"ensemble/internal/feed"
	appLog "ensemble/internal/log"
	"ensemble/internal/metrics"
	"ensemble/internal/scheduler"
	"ensemble/internal/site"
	"ensemble/internal/web"
)

var version = "0.1.0-dev"

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	output     string
	once       bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnvFile(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envPath)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI flags override both the config file and the environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.output != "" {
		conf.OutputDir = flags.output
	}

	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	} else {
		appLog.Warn("unknown log level, keeping default", "log_level", conf.LogLevel)
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Warn("invalid timezone, falling back to local", "timezone", conf.Timezone, "err", err.Error())
	}

	appLog.Info("ensemble starting", "version", version)
	appLog.Info("effective config",
		"site", conf.SiteName,
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"pages", len(conf.Pages),
		"output_dir", conf.OutputDir,
		"preview", conf.Preview.Enabled,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	cat := catalog.New(conf, loc, feed.NewFetcher(conf.CacheDir), m)
	renderer, err := site.NewRenderer()
	if err != nil {
		appLog.Error("failed to load templates", err)
		os.Exit(1)
	}

	p := &pipeline{cat: cat, renderer: renderer, outputDir: conf.OutputDir}

	if flags.once {
		if conf.OutputDir == "" {
			appLog.Warn("no output directory set, -once will only refresh")
		}
		if err := runOnce(ctx, p); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := checkPreview(conf); err != nil {
		appLog.Error("invalid preview config", err)
		os.Exit(1)
	}

	// A failing refresh task does not stop the build task after it.
	tasks := []scheduler.Task{
		{Name: "refresh", Run: p.refresh},
		{Name: "build", Run: p.build},
	}
	if conf.Preview.Enabled {
		baseURL := "http://" + loopback(conf.Listen)
		tasks = append(tasks, scheduler.Task{Name: "capture", Run: func(ctx context.Context) error {
			return capture.CapturePNG(ctx, capture.PreviewOptions(conf, baseURL))
		}})
	}

	sched, err := scheduler.New(conf.RefreshCron, loc, tasks...)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		os.Exit(1)
	}

	srv := web.NewServer(conf, cat, renderer, m)
	srv.OnRefresh(p.run)

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		appLog.Error("failed to listen", err, "addr", conf.Listen)
		os.Exit(1)
	}
	go func() {
		appLog.Info("http server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("http server failed", err)
			stop()
		}
	}()

	// First run happens immediately so pages are populated (and the server is
	// up for the capture step) without waiting for the first tick.
	if err := sched.RunOnce(ctx); err != nil {
		appLog.Warn("initial run finished with errors", "err", err.Error())
	}
	sched.Start(ctx)
	appLog.Info("scheduler started", "next", sched.Next().Format(time.RFC3339))

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	sched.Stop()
	appLog.Info("ensemble exiting")
}

// loopback turns a listen address into one a local client can dial.
func loopback(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to a .env file (ignored if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.output, "output", "", "Directory to write the static site to (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh, build the static site and exit")

	flag.Parse()

	return cfg
}
