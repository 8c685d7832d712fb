// Package topicmill runs the topic modeling pipeline: filter a corpus
// snapshot, detect phrases, tokenize, vectorize, pick the most coherent
// factorization, label it, and persist the result as one new model.
package topicmill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/coherence"
	"github.com/cognicore/topicmill/pkg/topicmill/config"
	"github.com/cognicore/topicmill/pkg/topicmill/corpus"
	"github.com/cognicore/topicmill/pkg/topicmill/exemplar"
	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/label"
	"github.com/cognicore/topicmill/pkg/topicmill/nmf"
	"github.com/cognicore/topicmill/pkg/topicmill/phrases"
	"github.com/cognicore/topicmill/pkg/topicmill/selector"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
	"github.com/cognicore/topicmill/pkg/topicmill/tokenize"
	"github.com/cognicore/topicmill/pkg/topicmill/vectorize"
)

// Algorithm is recorded on every model this package writes.
const Algorithm = "nmf-hals"

// Engine is the pipeline facade.
type Engine struct {
	store       store.Store
	source      corpus.Source
	config      config.Provider
	log         zerolog.Logger
	now         func() time.Time
	onCandidate func(selector.Candidate)
	ids         *idSource
}

// Options configures an Engine. A nil Store makes every run a dry run; a
// nil Config uses the defaults.
type Options struct {
	Store  store.Store
	Source corpus.Source
	Config config.Provider
	Logger zerolog.Logger
	Now    func() time.Time
	// OnCandidate is called as each topic count finishes fitting.
	OnCandidate func(selector.Candidate)
}

// New creates an Engine with the given dependencies.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:       opts.Store,
		source:      opts.Source,
		config:      opts.Config,
		log:         opts.Logger,
		now:         now,
		onCandidate: opts.OnCandidate,
		ids:         newIDSource(),
	}
}

// CandidateSummary is what a run reports about one attempted K. Only the
// winner's coherence is persisted.
type CandidateSummary struct {
	K          int           `json:"k"`
	Coherence  float64       `json:"coherence"`
	Residual   float64       `json:"residual"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        string        `json:"error,omitempty"`
	Chosen     bool          `json:"chosen"`
}

// Stats counts what each stage kept.
type Stats struct {
	Filter      corpus.FilterStats `json:"filter"`
	Phrases     int                `json:"phrases"`
	Vocabulary  int                `json:"vocabulary"`
	Documents   int                `json:"documents"`
	DroppedRows int                `json:"dropped_rows"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Result is the outcome of a successful run. Persisted reports whether it
// was written to the store.
type Result struct {
	Model      store.Model            `json:"model"`
	Topics     []store.Topic          `json:"topics"`
	Weights    []store.DocumentWeight `json:"-"`
	Snippets   []store.Snippet        `json:"snippets"`
	Candidates []CandidateSummary     `json:"candidates"`
	Warnings   []config.Warning       `json:"-"`
	Stats      Stats                  `json:"stats"`
	Persisted  bool                   `json:"persisted"`
}

// Run loads the corpus snapshot from the engine's source and fits it.
func (e *Engine) Run(ctx context.Context, corpusID string) (Result, error) {
	if e.source == nil {
		return Result{}, fmt.Errorf("run %s: no document source: %w", corpusID, internalerr.ErrInvalidInput)
	}
	s, warnings := e.settings()
	ctx, cancel := withTimeout(ctx, s.RunTimeout)
	defer cancel()

	records, err := e.source.Documents(ctx, corpusID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, internalerr.Canceled(ctxErr)
		}
		return Result{}, fmt.Errorf("load corpus %s: %w", corpusID, err)
	}
	return e.fit(ctx, corpusID, records, s, warnings)
}

// Fit runs the pipeline over records already in hand.
func (e *Engine) Fit(ctx context.Context, corpusID string, records []corpus.Record) (Result, error) {
	s, warnings := e.settings()
	ctx, cancel := withTimeout(ctx, s.RunTimeout)
	defer cancel()
	return e.fit(ctx, corpusID, records, s, warnings)
}

func (e *Engine) settings() (config.Settings, []config.Warning) {
	s, warnings := config.Resolve(e.config)
	for _, w := range warnings {
		e.log.Warn().Str("key", w.Key).Interface("value", w.Value).Err(w.Err).Msg("invalid setting, using default")
	}
	return s, warnings
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return internalerr.Canceled(err)
	}
	return nil
}

func (e *Engine) fit(ctx context.Context, corpusID string, records []corpus.Record, s config.Settings, warnings []config.Warning) (Result, error) {
	if corpusID == "" {
		return Result{}, fmt.Errorf("corpus id is required: %w", internalerr.ErrInvalidInput)
	}
	started := e.now()
	log := e.log.With().Str("corpus", corpusID).Logger()
	res := Result{Warnings: warnings}

	filter := corpus.Filter{
		MinChars:     s.MinDocLenChars,
		MaxPerDomain: s.MaxPerDomain,
		MinDocuments: s.MinDocuments,
		ErrorMarkers: s.ErrorMarkers,
		Dedupe:       s.DedupeDocuments,
	}
	corp, fstats, err := filter.Apply(records)
	res.Stats.Filter = fstats
	if err != nil {
		log.Warn().Str("stage", "filter").Interface("stats", fstats).Err(err).Msg("corpus rejected")
		return res, err
	}
	log.Info().Str("stage", "filter").Int("candidates", fstats.Candidates).Int("kept", fstats.Kept).
		Int("too_short", fstats.TooShort).Int("error_marker", fstats.ErrorMarker).
		Int("domain_capped", fstats.DomainCapped).Msg("documents filtered")
	if err := checkpoint(ctx); err != nil {
		return res, err
	}

	stop, warn := e.stopwords(s)
	if warn != nil {
		res.Warnings = append(res.Warnings, *warn)
	}
	strategy, fallback := tokenize.New(tokenize.Options{
		Mode:      s.TokenizerMode(),
		MinLen:    s.MinTokenLen,
		Language:  s.Language,
		Stopwords: stop,
		Logger:    log,
	})
	if fallback != nil {
		res.Warnings = append(res.Warnings, config.Warning{Key: "use_enhanced_tokenizer", Value: true, Err: fallback})
	}

	phraser := phrases.Learn(corp.Texts(), phrases.Params{
		MinCount:  s.PhraseMinCount,
		Threshold: s.PhraseThreshold,
		Stopwords: stop.Has,
	})
	joined := phraser.ApplyAll(corp.Texts())
	res.Stats.Phrases = len(phraser.Phrases())
	ev := log.Info().Str("stage", "phrases").Int("phrases", res.Stats.Phrases)
	if learned := phraser.Phrases(); len(learned) > 0 {
		ev = ev.Str("top", learned[0].Text)
	}
	ev.Msg("phrases learned")
	if err := checkpoint(ctx); err != nil {
		return res, err
	}

	tokens := make([][]string, len(joined))
	for i, text := range joined {
		tokens[i] = strategy.Tokenize(text)
	}
	log.Info().Str("stage", "tokenize").Str("tokenizer", strategy.Name()).Int("documents", len(tokens)).Msg("documents tokenized")
	if err := checkpoint(ctx); err != nil {
		return res, err
	}

	matrix, err := vectorize.TFIDF{MinDF: s.MinDF, MaxDF: s.MaxDF, MaxFeatures: s.MaxFeatures}.Fit(tokens)
	if err != nil {
		log.Warn().Str("stage", "vectorize").Err(err).Msg("no usable vocabulary")
		return res, err
	}
	res.Stats.Vocabulary = len(matrix.Vocabulary)
	res.Stats.Documents = len(matrix.Rows)
	res.Stats.DroppedRows = matrix.Dropped
	log.Info().Str("stage", "vectorize").Int("vocabulary", len(matrix.Vocabulary)).
		Int("rows", len(matrix.Rows)).Int("dropped", matrix.Dropped).Msg("matrix built")

	scorer := coherence.NewScorer(matrix.Tokens(tokens), matrix.Vocabulary)
	sel, err := selector.Select(ctx, matrix, scorer, selector.Options{
		KGrid:    s.KGrid,
		TopWords: s.TopWords,
		Factorizer: nmf.Options{
			MaxIter:  s.MaxIter,
			Seed:     s.Seed,
			Tol:      s.Tol,
			Restarts: s.Restarts,
		},
		Concurrency:  s.Concurrency,
		TieTolerance: s.TieTolerance,
		Logger:       log,
		OnCandidate:  e.onCandidate,
	})
	res.Candidates = summarize(sel)
	if err != nil {
		return res, err
	}
	best := sel.Best
	log.Info().Str("stage", "select").Int("k", best.K).Float64("coherence", best.Coherence).Msg("model selected")
	if err := checkpoint(ctx); err != nil {
		return res, err
	}

	docTopics := best.Factors.DocumentTopics()
	topics := label.Build(best.TopTerms, docTopics, strategy.Display, s.LabelTerms)

	docs := make([]exemplar.Document, len(matrix.Rows))
	for r, i := range matrix.Rows {
		d := corp.Docs[i]
		meta := corp.Meta[d.ID]
		docs[r] = exemplar.Document{ID: d.ID, URL: meta.URL, Domain: meta.Domain, Title: meta.Title, Text: d.Text}
	}
	extractor := exemplar.Extractor{PerTopic: s.ExemplarsPerTopic, MaxChars: s.SnippetChars, Key: strategy.Key}
	exemplars := extractor.Extract(docTopics, docs, coherence.Words(best.TopTerms))
	if err := checkpoint(ctx); err != nil {
		return res, err
	}

	run := e.buildRun(corpusID, s, best, topics, docs, docTopics, exemplars, len(matrix.Vocabulary))
	res.Model, res.Topics, res.Weights, res.Snippets = run.Model, run.Topics, run.Weights, run.Snippets

	if e.store == nil {
		log.Info().Str("stage", "persist").Bool("dry_run", true).Str("model", run.Model.ID).Msg("model not persisted")
	} else {
		if err := checkpoint(ctx); err != nil {
			return res, err
		}
		if err := e.store.SaveRun(ctx, run); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, internalerr.Canceled(errors.Join(ctxErr, err))
			}
			return res, err
		}
		res.Persisted = true
		log.Info().Str("stage", "persist").Str("model", run.Model.ID).Int("topics", len(run.Topics)).
			Int("weights", len(run.Weights)).Int("snippets", len(run.Snippets)).Msg("model persisted")
	}
	res.Stats.Elapsed = e.now().Sub(started)
	return res, nil
}

// stopwords loads the configured list, falling back to the embedded one.
func (e *Engine) stopwords(s config.Settings) (tokenize.StopSet, *config.Warning) {
	if s.StopwordsPath == "" {
		return tokenize.DefaultStopwords(), nil
	}
	stop, err := tokenize.LoadStopwords(s.StopwordsPath)
	if err != nil {
		w := config.Warning{Key: "stopwords_path", Value: s.StopwordsPath, Err: fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)}
		e.log.Warn().Str("key", w.Key).Str("path", s.StopwordsPath).Err(err).Msg("stopwords unreadable, using embedded list")
		return tokenize.DefaultStopwords(), &w
	}
	return stop, nil
}

// buildRun assigns identifiers and flattens the pipeline output into rows.
// Row r of docTopics belongs to docs[r].
func (e *Engine) buildRun(corpusID string, s config.Settings, best selector.Candidate, topics []label.Topic,
	docs []exemplar.Document, docTopics mat.Matrix, exemplars [][]exemplar.Exemplar, vocabSize int) store.Run {
	created := e.now().UTC()
	k := best.K
	model := store.Model{
		ID:              e.ids.next(created),
		CorpusID:        corpusID,
		Algorithm:       Algorithm,
		CreatedAt:       created,
		K:               k,
		Coherence:       best.Coherence,
		MinDF:           s.MinDF,
		MaxDF:           s.MaxDF,
		PhraseMinCount:  s.PhraseMinCount,
		PhraseThreshold: s.PhraseThreshold,
		Params:          s.Params(),
		DocumentCount:   len(docs),
		VocabularySize:  vocabSize,
	}
	run := store.Run{Model: model}

	topicIDs := make([]string, len(topics))
	for _, t := range topics {
		topicIDs[t.Index] = e.ids.next(created)
	}
	run.Topics = make([]store.Topic, len(topics))
	for _, t := range topics {
		terms := make([]store.TermWeight, len(t.Terms))
		for j, term := range t.Terms {
			terms[j] = store.TermWeight{Term: term.Term, Weight: term.Weight}
		}
		run.Topics[t.Rank] = store.Topic{
			ID:       topicIDs[t.Index],
			ModelID:  model.ID,
			Label:    t.Label,
			TopTerms: terms,
			Coverage: t.Coverage,
			Rank:     t.Rank,
		}
	}

	for r, d := range docs {
		for c := 0; c < k; c++ {
			if w := docTopics.At(r, c); w > 0 {
				run.Weights = append(run.Weights, store.DocumentWeight{
					ModelID:    model.ID,
					DocumentID: d.ID,
					TopicID:    topicIDs[c],
					Weight:     w,
				})
			}
		}
	}

	for _, byTopic := range exemplars {
		for _, ex := range byTopic {
			run.Snippets = append(run.Snippets, store.Snippet{
				ID:      e.ids.next(created),
				ModelID: model.ID,
				TopicID: topicIDs[ex.Topic],
				URL:     ex.Document.URL,
				Domain:  ex.Document.Domain,
				Title:   ex.Document.Title,
				Text:    ex.Text,
				Score:   ex.Score,
			})
		}
	}
	return run
}

func summarize(sel selector.Result) []CandidateSummary {
	out := make([]CandidateSummary, len(sel.Candidates))
	for i, c := range sel.Candidates {
		cs := CandidateSummary{K: c.K, Coherence: c.Coherence, Elapsed: c.Elapsed}
		if c.Factors != nil {
			cs.Residual = c.Factors.Err
			cs.Iterations = c.Factors.Iter
		}
		if c.Err != nil {
			cs.Err = c.Err.Error()
		}
		cs.Chosen = c.OK() && sel.Best.Factors != nil && c.K == sel.Best.K
		out[i] = cs
	}
	return out
}
