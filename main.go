package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/args"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/config"
)

// main function to parse arguments and run the selected command.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := args.ParseArgs(ctx, *cfg)
	if err != nil {
		return err
	}

	app, err := newApp(*cfg, a, os.Stdout)
	if err != nil {
		return err
	}
	defer app.close()

	switch a.Command {
	case args.CommandAnalyze:
		return app.analyze(ctx, a.URL, a.Question)
	case args.CommandHistory:
		return app.listHistory(ctx, a.Limit)
	case args.CommandHistoryShow:
		return app.showHistory(ctx, a.EntryID)
	case args.CommandHistoryClear:
		return app.clearHistory(ctx)
	}
	return nil
}
