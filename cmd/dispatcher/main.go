// Command dispatcher runs the HTTP-fetch dispatcher described in
// SPEC_FULL.md: it accepts cache-or-fetch requests, coalesces duplicate
// in-flight work, and hands fetches out to a pool of fetcher clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devazuka/dispatch/internal/cache"
	"github.com/devazuka/dispatch/internal/cooldown"
	"github.com/devazuka/dispatch/internal/dispatch"
	"github.com/devazuka/dispatch/internal/fetcher"
	"github.com/devazuka/dispatch/internal/httpapi"
)

type options struct {
	port int

	cacheDir     string
	redisAddress string

	cooldownDB string

	logLevel string

	localFetcher         bool
	localFetcherInterval time.Duration

	requestTimeout time.Duration
}

func (o *options) validate() error {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level specified: %w", err)
	}
	logrus.SetLevel(level)

	if o.cacheDir == "" && o.redisAddress == "" {
		return errors.New("one of --cache-dir or --redis-address must be set")
	}
	return nil
}

func flagOptions() *options {
	o := &options{}
	flag.IntVar(&o.port, "port", 8888, "Port to listen on.")
	flag.StringVar(&o.cacheDir, "cache-dir", "./cache", "Directory for the content-addressed cache and per-queue subdirectories.")
	flag.StringVar(&o.redisAddress, "redis-address", "", "Redis address if using a redis cache backend, e.g. localhost:6379. Overrides --cache-dir.")
	flag.StringVar(&o.cooldownDB, "cooldown-db", "./cooldown.db", "Path to the bbolt database persisting per-client cooldown timers across restarts.")
	flag.StringVar(&o.logLevel, "log-level", "info", fmt.Sprintf("Log level, one of %v.", logrus.AllLevels))
	flag.BoolVar(&o.localFetcher, "local-fetcher", true, "Run an in-process fetcher polling this dispatcher's own next-request endpoint, to avoid starvation when no remote fetchers are attached.")
	flag.DurationVar(&o.localFetcherInterval, "local-fetcher-poll-interval", 2*time.Second, "Poll interval for the in-process local fetcher.")
	flag.DurationVar(&o.requestTimeout, "request-timeout", 30*time.Second, "Timeout applied to the HTTP server's handlers.")
	return o
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	o := flagOptions()
	flag.Parse()
	if err := o.validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid arguments.")
	}

	queues := dispatch.NewRegistry(o.cacheDir)

	var store cache.Store
	if o.redisAddress != "" {
		store = cache.NewRedisStore(o.redisAddress)
	} else {
		store = cache.NewDiskStore(o.cacheDir)
	}

	cdStore, err := cooldown.Open(o.cooldownDB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open cooldown store.")
	}
	defer cdStore.Close()

	d := dispatch.NewDispatcher(queues, store, cdStore)
	server := httpapi.New(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepStop := make(chan struct{})
	go cdStore.RunSweeper(time.Hour, sweepStop)
	defer close(sweepStop)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(o.port),
		Handler: http.TimeoutHandler(server.Mux(), o.requestTimeout, `{"message":"dispatcher timed out handling request","status":504}`),
	}

	go func() {
		logrus.WithField("port", o.port).Info("Dispatcher listening.")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP server failed.")
		}
	}()

	if o.localFetcher {
		local := fetcher.New(fetcher.Config{
			DispatcherURL: fmt.Sprintf("http://127.0.0.1:%d", o.port),
			ClientID:      "localhost",
			PollInterval:  o.localFetcherInterval,
		})
		go func() {
			if err := local.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Warn("Local fetcher stopped.")
			}
		}()
	}

	<-ctx.Done()
	logrus.Info("Shutting down.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Graceful shutdown failed.")
	}
}
