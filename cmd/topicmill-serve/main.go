package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cognicore/topicmill/internal/api"
	"github.com/cognicore/topicmill/internal/logging"
	"github.com/cognicore/topicmill/pkg/topicmill"
	"github.com/cognicore/topicmill/pkg/topicmill/config"
	"github.com/cognicore/topicmill/pkg/topicmill/corpus"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
	"github.com/cognicore/topicmill/pkg/topicmill/store/pgstore"
	"github.com/cognicore/topicmill/pkg/topicmill/store/sqlite"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "Listen address")
		dbPath     = flag.String("db", "topics.db", "SQLite database path")
		pgDSN      = flag.String("pg", "", "Postgres DSN; overrides -db")
		corpusDir  = flag.String("corpus-dir", "", "Directory of <corpus>.jsonl snapshots; enables POST /corpora/{id}/runs")
		configPath = flag.String("config", "", "YAML file with pipeline settings")
		envPath    = flag.String("env", "", "dotenv file loaded before reading TOPICMILL_* variables")
		logLevel   = flag.String("log-level", "info", "Log level")
		logFormat  = flag.String("log-format", "json", "Log format: console or json")
	)
	flag.Parse()

	log := logging.New(*logLevel, *logFormat, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *envPath != "" {
		if err := config.LoadEnvFile(*envPath); err != nil {
			log.Fatal().Err(err).Msg("load env file")
		}
	}

	var (
		st  store.Store
		err error
	)
	if *pgDSN != "" {
		st, err = pgstore.Open(ctx, *pgDSN)
	} else {
		st, err = sqlite.Open(ctx, *dbPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	srv := &api.Server{Store: st, Logger: log}
	if *corpusDir != "" {
		var file config.Map
		if *configPath != "" {
			if file, err = config.LoadYAML(*configPath); err != nil {
				log.Fatal().Err(err).Msg("load settings")
			}
		}
		srv.Runner = topicmill.New(topicmill.Options{
			Store:  st,
			Source: corpus.JSONLSource{Dir: *corpusDir},
			Config: config.Chain(config.Env{}, file),
			Logger: log,
		})
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdown)
	}()

	log.Info().Str("addr", *addr).Bool("runs", srv.Runner != nil).Msg("serving topic models")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
}
