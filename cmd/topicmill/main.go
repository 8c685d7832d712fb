package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/cognicore/topicmill/internal/logging"
	"github.com/cognicore/topicmill/pkg/topicmill"
	"github.com/cognicore/topicmill/pkg/topicmill/config"
	"github.com/cognicore/topicmill/pkg/topicmill/corpus"
	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/selector"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
	"github.com/cognicore/topicmill/pkg/topicmill/store/pgstore"
	"github.com/cognicore/topicmill/pkg/topicmill/store/sqlite"
)

type options struct {
	input      string
	corpusID   string
	dbPath     string
	pgDSN      string
	configPath string
	envPath    string
	dryRun     bool
	jsonOut    bool
	noProgress bool
	logLevel   string
	logFormat  string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("topicmill", flag.ContinueOnError)
	fs.StringVar(&o.input, "input", "", "JSONL corpus snapshot (required)")
	fs.StringVar(&o.corpusID, "corpus", "", "Corpus id the model is recorded under (required)")
	fs.StringVar(&o.dbPath, "db", "topics.db", "SQLite database path")
	fs.StringVar(&o.pgDSN, "pg", "", "Postgres DSN; overrides -db")
	fs.StringVar(&o.configPath, "config", "", "YAML file with pipeline settings")
	fs.StringVar(&o.envPath, "env", "", "dotenv file loaded before reading TOPICMILL_* variables")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Fit and report without persisting")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON instead of a summary")
	fs.BoolVar(&o.noProgress, "no-progress", false, "Hide the candidate progress bar")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level")
	fs.StringVar(&o.logFormat, "log-format", "console", "Log format: console or json")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.input == "" {
		return o, errors.New("-input required")
	}
	if o.corpusID == "" {
		return o, errors.New("-corpus required")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(o.logLevel, o.logFormat, os.Stderr)
	if err := run(ctx, o, log, os.Stdout); err != nil {
		outcome := internalerr.OutcomeOf(err)
		color.Red("✗ %s: %v", outcome, err)
		os.Exit(1)
	}
}

func settingsProvider(o options) (config.Provider, error) {
	if o.envPath != "" {
		if err := config.LoadEnvFile(o.envPath); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	var file config.Map
	if o.configPath != "" {
		m, err := config.LoadYAML(o.configPath)
		if err != nil {
			return nil, err
		}
		file = m
	}
	return config.Chain(config.Env{}, file), nil
}

func openStore(ctx context.Context, o options) (store.Store, error) {
	switch {
	case o.dryRun:
		return nil, nil
	case o.pgDSN != "":
		return pgstore.Open(ctx, o.pgDSN)
	default:
		return sqlite.Open(ctx, o.dbPath)
	}
}

func run(ctx context.Context, o options, log zerolog.Logger, out io.Writer) error {
	provider, err := settingsProvider(o)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, o)
	if err != nil {
		return fmt.Errorf("open store: %w: %w", internalerr.ErrPersistence, err)
	}
	if st != nil {
		defer st.Close()
	}

	var bar *progressbar.ProgressBar
	if !o.noProgress && !o.jsonOut {
		settings, _ := config.Resolve(provider)
		bar = candidateBar(len(settings.KGrid))
	}

	eng := topicmill.New(topicmill.Options{
		Store:  st,
		Source: corpus.JSONLSource{Path: o.input},
		Config: provider,
		Logger: log,
		OnCandidate: func(c selector.Candidate) {
			if bar == nil {
				return
			}
			if c.OK() {
				bar.Describe(color.BlueString("k=%d coherence %.4f", c.K, c.Coherence))
			} else {
				bar.Describe(color.YellowString("k=%d failed", c.K))
			}
			_ = bar.Add(1)
		},
	})

	res, err := eng.Run(ctx, o.corpusID)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSummary(out, res)
	return nil
}

func candidateBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString("fitting candidates")),
		progressbar.OptionSetItsString("fits"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printSummary(w io.Writer, res topicmill.Result) {
	green := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.Faint)

	state := "persisted"
	if !res.Persisted {
		state = "dry run, not persisted"
	}
	green.Fprintf(w, "✓ model %s (%s)\n", res.Model.ID, state)
	fmt.Fprintf(w, "  k=%d coherence=%.4f documents=%d vocabulary=%d phrases=%d\n",
		res.Model.K, res.Model.Coherence, res.Model.DocumentCount, res.Model.VocabularySize, res.Stats.Phrases)

	for _, c := range res.Candidates {
		switch {
		case c.Err != "":
			color.New(color.FgYellow).Fprintf(w, "  k=%-3d failed: %s\n", c.K, c.Err)
		case c.Chosen:
			green.Fprintf(w, "  k=%-3d coherence %.4f  chosen\n", c.K, c.Coherence)
		default:
			dim.Fprintf(w, "  k=%-3d coherence %.4f\n", c.K, c.Coherence)
		}
	}

	fmt.Fprintln(w)
	for _, t := range res.Topics {
		color.New(color.FgCyan).Fprintf(w, "  #%d %s", t.Rank+1, t.Label)
		dim.Fprintf(w, "  (%.1f%%)\n", t.Coverage*100)
	}
	for _, warn := range res.Warnings {
		color.New(color.FgYellow).Fprintf(w, "  warning: %v\n", warn)
	}
}
