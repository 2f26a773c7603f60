package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/args"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/client"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/config"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/history"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/logging"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/render"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/session"
)

// errReported marks failures the renderer has already shown to the user.
var errReported = errors.New("analysis failed")

type app struct {
	cfg    config.Config
	args   args.Arguments
	out    io.Writer
	logger *zap.Logger
	store  *history.Store
}

func newApp(cfg config.Config, a args.Arguments, out io.Writer) (*app, error) {
	level := cfg.Log.Level
	if a.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, args: a, out: out, logger: logger}, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *app) history() (*history.Store, error) {
	if a.store == nil {
		store, err := history.Open(a.cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a.store, nil
}

func (a *app) renderer() (*render.TerminalRenderer, error) {
	return render.NewTerminalRenderer(a.out, render.Options{
		PlainText: a.args.UsePlainText,
		Theme:     a.cfg.Render.Theme,
		Wrap:      a.cfg.Render.Wrap,
	})
}

func (a *app) analyze(ctx context.Context, url, question string) error {
	renderer, err := a.renderer()
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithLogger(a.logger)}
	if !a.args.NoHistory {
		store, err := a.history()
		if err != nil {
			// History is a convenience; answering still works without it.
			a.logger.Warn("history disabled", zap.Error(err))
		} else {
			opts = append(opts, session.WithRecorder(store))
		}
	}

	ctrl := session.New(client.New(a.args.Endpoint, client.WithTimeout(a.args.Timeout)), opts...)

	renderer.Title(url, question)
	_, err = ctrl.Submit(ctx, url, question, renderer)
	if rerr := renderer.Err(); rerr != nil {
		return rerr
	}
	if err != nil {
		a.logger.Debug("analysis failed", zap.Error(err))
		return errReported
	}
	return nil
}

func (a *app) listHistory(ctx context.Context, limit int) error {
	store, err := a.history()
	if err != nil {
		return err
	}
	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No history yet.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %s  %s\n", e.ShortID(), e.CreatedAt.Local().Format("2006-01-02 15:04"), summarize(e.Question, 40))
	}
	return nil
}

func (a *app) showHistory(ctx context.Context, id string) error {
	store, err := a.history()
	if err != nil {
		return err
	}
	entry, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	renderer, err := a.renderer()
	if err != nil {
		return err
	}
	renderer.Title(entry.URL, entry.Question)
	renderer.Update(entry.State())
	return renderer.Err()
}

func (a *app) clearHistory(ctx context.Context) error {
	store, err := a.history()
	if err != nil {
		return err
	}
	n, err := store.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %d entries.\n", n)
	return nil
}

// summarize trims and shortens a question for one-line listings.
func summarize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		s = string(r[:n-3]) + "..."
	}
	return s
}
