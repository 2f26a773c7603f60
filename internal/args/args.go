package args

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/config"
)

// Commands selected by ParseArgs.
const (
	CommandAnalyze      = "analyze"
	CommandHistory      = "history"
	CommandHistoryShow  = "history show"
	CommandHistoryClear = "history clear"
)

// ErrMissingInput is returned when no url or no question was given.
var ErrMissingInput = errors.New("a url and a question are required")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Command  string
	URL      string
	Question string

	Endpoint     string
	Timeout      time.Duration
	UsePlainText bool
	NoHistory    bool
	Verbose      bool

	// EntryID selects a history entry for "history show".
	EntryID string
	// Limit caps the "history" listing.
	Limit int
}

// input is where a question is read from when it is not given as arguments.
type input struct {
	r     io.Reader
	piped bool
}

// ParseArgs parses command-line arguments and stdin input, returning an Arguments struct.
// Command is empty when nothing should run, e.g. after --help.
func ParseArgs(ctx context.Context, cfg config.Config) (Arguments, error) {
	in := input{r: os.Stdin}
	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		in.piped = true
	}
	return parse(ctx, cfg, os.Args[1:], in, os.Stdout)
}

func parse(ctx context.Context, cfg config.Config, argv []string, in input, out io.Writer) (Arguments, error) {
	args := Arguments{}

	rootCmd := &cobra.Command{
		Use:   "web-analysis [flags] <url> <question...>",
		Short: "Ask a question about a web page and stream the answer",
		Long: "Sends a url and a question to the analysis service and renders the answer as it streams in.\n" +
			"When only the url is given, the question is read from stdin.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandAnalyze
			if len(cmdArgs) > 0 {
				args.URL = strings.TrimSpace(cmdArgs[0])
			}
			if len(cmdArgs) > 1 {
				args.Question = strings.TrimSpace(strings.Join(cmdArgs[1:], " "))
			}
			if args.URL != "" && args.Question == "" && in.piped {
				q, err := readQuestion(in.r)
				if err != nil {
					return err
				}
				args.Question = q
			}
			if args.URL == "" || args.Question == "" {
				return ErrMissingInput
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")
	rootCmd.PersistentFlags().BoolVarP(&args.Verbose, "verbose", "v", false, "Log diagnostics to stderr")
	rootCmd.Flags().StringVar(&args.Endpoint, "endpoint", cfg.Endpoint, "Analysis endpoint URL")
	rootCmd.Flags().DurationVar(&args.Timeout, "timeout", cfg.Timeout, "Give up after this long (0 for no limit)")
	rootCmd.Flags().BoolVar(&args.NoHistory, "no-history", !cfg.History.Enabled, "Do not save this answer to history")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past questions and answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandHistory
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&args.Limit, "limit", "n", cfg.History.Limit, "Number of entries to list (0 for all)")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a past answer by id or id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandHistoryShow
			args.EntryID = cmdArgs[0]
			return nil
		},
	})
	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandHistoryClear
			return nil
		},
	})
	rootCmd.AddCommand(historyCmd)

	rootCmd.SetArgs(argv)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	// Execute the command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}

	return args, nil
}

// readQuestion reads the whole of r as the question.
func readQuestion(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if fileInfo, _ := os.Stdout.Stat(); fileInfo != nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			return true
		}
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if term := os.Getenv("TERM"); term == "dumb" {
		return true
	}

	return false
}
