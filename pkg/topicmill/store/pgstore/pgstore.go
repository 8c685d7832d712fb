// Package pgstore implements store.Store on PostgreSQL through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS topic_models (
	id TEXT PRIMARY KEY,
	corpus_id TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	k INTEGER NOT NULL,
	coherence DOUBLE PRECISION NOT NULL,
	min_df INTEGER NOT NULL,
	max_df DOUBLE PRECISION NOT NULL,
	phrase_min_count INTEGER NOT NULL,
	phrase_threshold DOUBLE PRECISION NOT NULL,
	params JSONB,
	document_count INTEGER NOT NULL,
	vocabulary_size INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS topic_models_corpus ON topic_models(corpus_id, created_at DESC);

CREATE TABLE IF NOT EXISTS topics (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES topic_models(id) ON DELETE CASCADE,
	label TEXT NOT NULL,
	top_terms JSONB NOT NULL,
	coverage DOUBLE PRECISION NOT NULL,
	topic_rank INTEGER NOT NULL,
	UNIQUE(model_id, topic_rank),
	UNIQUE(id, model_id)
);

CREATE TABLE IF NOT EXISTS topic_document_weights (
	model_id TEXT NOT NULL REFERENCES topic_models(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	topic_id TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY(model_id, document_id, topic_id),
	FOREIGN KEY(topic_id, model_id) REFERENCES topics(id, model_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS topic_snippets (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES topic_models(id) ON DELETE CASCADE,
	topic_id TEXT NOT NULL,
	url TEXT,
	domain TEXT,
	title TEXT,
	text TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	FOREIGN KEY(topic_id, model_id) REFERENCES topics(id, model_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS topic_snippets_topic ON topic_snippets(topic_id);
`

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, internalerr.ErrPersistence, err)
}

// SaveRun writes a run in one transaction. Document weights go through
// COPY since they are the bulk of the rows.
func (s *pgStore) SaveRun(ctx context.Context, run store.Run) error {
	if err := run.Validate(); err != nil {
		return persistErr("save run", err)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return saveRun(ctx, tx, run)
	})
	if err != nil {
		return persistErr("save run", err)
	}
	return nil
}

func saveRun(ctx context.Context, tx pgx.Tx, run store.Run) error {
	m := run.Model
	_, err := tx.Exec(ctx, `
INSERT INTO topic_models (id, corpus_id, algorithm, created_at, k, coherence, min_df, max_df,
	phrase_min_count, phrase_threshold, params, document_count, vocabulary_size)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.CorpusID, m.Algorithm, m.CreatedAt.UTC(), m.K, m.Coherence, m.MinDF, m.MaxDF,
		m.PhraseMinCount, m.PhraseThreshold, m.Params, m.DocumentCount, m.VocabularySize)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range run.Topics {
		batch.Queue(`INSERT INTO topics (id, model_id, label, top_terms, coverage, topic_rank)
VALUES ($1, $2, $3, $4, $5, $6)`, t.ID, t.ModelID, t.Label, t.TopTerms, t.Coverage, t.Rank)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert topics: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"topic_document_weights"},
		[]string{"model_id", "document_id", "topic_id", "weight"},
		pgx.CopyFromSlice(len(run.Weights), func(i int) ([]any, error) {
			w := run.Weights[i]
			return []any{w.ModelID, w.DocumentID, w.TopicID, w.Weight}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy weights: %w", err)
	}

	batch = &pgx.Batch{}
	for _, sn := range run.Snippets {
		batch.Queue(`INSERT INTO topic_snippets (id, model_id, topic_id, url, domain, title, text, score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, sn.ID, sn.ModelID, sn.TopicID, sn.URL, sn.Domain, sn.Title, sn.Text, sn.Score)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert snippets: %w", err)
	}
	return nil
}

func (s *pgStore) DeleteModel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM topic_models WHERE id = $1`, id)
	if err != nil {
		return persistErr("delete model", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

const modelColumns = `id, corpus_id, algorithm, created_at, k, coherence, min_df, max_df,
	phrase_min_count, phrase_threshold, params, document_count, vocabulary_size`

func scanModel(row pgx.Row) (store.Model, error) {
	var m store.Model
	err := row.Scan(&m.ID, &m.CorpusID, &m.Algorithm, &m.CreatedAt, &m.K, &m.Coherence, &m.MinDF, &m.MaxDF,
		&m.PhraseMinCount, &m.PhraseThreshold, &m.Params, &m.DocumentCount, &m.VocabularySize)
	if err != nil {
		return store.Model{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *pgStore) GetModel(ctx context.Context, id string) (store.Model, error) {
	m, err := scanModel(s.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM topic_models WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Model{}, fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	return m, err
}

func (s *pgStore) LatestModel(ctx context.Context, corpusID string) (store.Model, bool, error) {
	m, err := scanModel(s.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM topic_models
WHERE corpus_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, corpusID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Model{}, false, nil
	}
	if err != nil {
		return store.Model{}, false, err
	}
	return m, true, nil
}

func (s *pgStore) ListModels(ctx context.Context, corpusID string, limit int) ([]store.Model, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+modelColumns+` FROM topic_models
WHERE corpus_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, corpusID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []store.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *pgStore) TopicsByModel(ctx context.Context, modelID string) ([]store.Topic, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, model_id, label, top_terms, coverage, topic_rank FROM topics
WHERE model_id = $1 ORDER BY topic_rank`, modelID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Topic, error) {
		var t store.Topic
		err := row.Scan(&t.ID, &t.ModelID, &t.Label, &t.TopTerms, &t.Coverage, &t.Rank)
		return t, err
	})
}

func (s *pgStore) SnippetsByTopic(ctx context.Context, topicID string) ([]store.Snippet, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, model_id, topic_id, COALESCE(url, ''), COALESCE(domain, ''), COALESCE(title, ''), text, score
FROM topic_snippets WHERE topic_id = $1 ORDER BY score DESC, id`, topicID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Snippet, error) {
		var sn store.Snippet
		err := row.Scan(&sn.ID, &sn.ModelID, &sn.TopicID, &sn.URL, &sn.Domain, &sn.Title, &sn.Text, &sn.Score)
		return sn, err
	})
}

func (s *pgStore) DocumentWeights(ctx context.Context, modelID string) ([]store.DocumentWeight, error) {
	rows, err := s.pool.Query(ctx, `
SELECT model_id, document_id, topic_id, weight FROM topic_document_weights
WHERE model_id = $1 ORDER BY document_id, topic_id`, modelID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[store.DocumentWeight])
}
