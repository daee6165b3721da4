// Command fetcher runs a detachable, remote instance of the wire-protocol
// collaborator described in SPEC_FULL.md §6: it polls a dispatcher for
// work, performs the outbound fetch, and posts the body back.
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

	"github.com/sirupsen/logrus"

	"github.com/devazuka/dispatch/internal/fetcher"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var (
		dispatcherURL = flag.String("dispatcher", "http://127.0.0.1:8888", "Base URL of the dispatcher to poll.")
		clientID      = flag.String("client-id", "", "Client id to identify as; defaults to hostname-pid if unset.")
		pollInterval  = flag.Duration("poll-interval", 2*time.Second, "Interval between empty polls.")
		concurrency   = flag.Int64("concurrency", 4, "Maximum concurrent upstream fetches.")
		logLevel      = flag.String("log-level", "info", "Log level.")
	)
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level.")
	}
	logrus.SetLevel(level)

	id := *clientID
	if id == "" {
		host, _ := os.Hostname()
		id = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	f := fetcher.New(fetcher.Config{
		DispatcherURL: *dispatcherURL,
		ClientID:      id,
		PollInterval:  *pollInterval,
		Concurrency:   *concurrency,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.WithField("client-id", id).WithField("dispatcher", *dispatcherURL).Info("Fetcher starting.")
	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Fatal("Fetcher stopped unexpectedly.")
	}
}
