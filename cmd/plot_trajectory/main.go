package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cactusdynamics/trajplot"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logrus.SetOutput(stderr)

	config, err := trajplot.ParseOptions(args)
	if trajplot.IsHelp(err) {
		fmt.Fprintln(stdout, err)
		return 0
	} else if err != nil {
		logrus.WithError(err).Error("invalid command line")
		fmt.Fprintf(stderr, "usage: plot_trajectory %s\n", trajplot.Usage)
		return 1
	}

	switch {
	case config.Verbosity >= 2:
		logrus.SetLevel(logrus.TraceLevel)
	case config.Verbosity == 1:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = trajplot.Run(ctx, config)
	if errors.Is(err, context.Canceled) {
		logrus.Info("interrupted")
		return 0
	} else if err != nil {
		logrus.WithError(err).Error("failed to plot trajectory")
		return 1
	}

	return 0
}
