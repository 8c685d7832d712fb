// Package sqlite implements store.Store on SQLite (modernc.org/sqlite, no
// cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL mode and foreign
// keys enabled, and creates the schema if needed.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS topic_models (
	id TEXT PRIMARY KEY,
	corpus_id TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	created_at TEXT NOT NULL,
	k INTEGER NOT NULL,
	coherence REAL NOT NULL,
	min_df INTEGER NOT NULL,
	max_df REAL NOT NULL,
	phrase_min_count INTEGER NOT NULL,
	phrase_threshold REAL NOT NULL,
	params TEXT,
	document_count INTEGER NOT NULL,
	vocabulary_size INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS topic_models_corpus ON topic_models(corpus_id, created_at);

CREATE TABLE IF NOT EXISTS topics (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	label TEXT NOT NULL,
	top_terms TEXT NOT NULL,
	coverage REAL NOT NULL,
	topic_rank INTEGER NOT NULL,
	UNIQUE(model_id, topic_rank),
	UNIQUE(id, model_id),
	FOREIGN KEY(model_id) REFERENCES topic_models(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS topic_document_weights (
	model_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	topic_id TEXT NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY(model_id, document_id, topic_id),
	FOREIGN KEY(model_id) REFERENCES topic_models(id) ON DELETE CASCADE,
	FOREIGN KEY(topic_id, model_id) REFERENCES topics(id, model_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS topic_snippets (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	topic_id TEXT NOT NULL,
	url TEXT,
	domain TEXT,
	title TEXT,
	text TEXT NOT NULL,
	score REAL NOT NULL,
	FOREIGN KEY(model_id) REFERENCES topic_models(id) ON DELETE CASCADE,
	FOREIGN KEY(topic_id, model_id) REFERENCES topics(id, model_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS topic_snippets_topic ON topic_snippets(topic_id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, internalerr.ErrPersistence, err)
}

// SaveRun writes the model and all of its children in one transaction.
func (s *sqliteStore) SaveRun(ctx context.Context, run store.Run) error {
	if err := run.Validate(); err != nil {
		return persistErr("save run", err)
	}
	if err := s.saveRun(ctx, run); err != nil {
		return persistErr("save run", err)
	}
	return nil
}

func (s *sqliteStore) saveRun(ctx context.Context, run store.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m := run.Model
	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO topic_models (id, corpus_id, algorithm, created_at, k, coherence, min_df, max_df,
	phrase_min_count, phrase_threshold, params, document_count, vocabulary_size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CorpusID, m.Algorithm, m.CreatedAt.UTC().Format(timeLayout), m.K, m.Coherence,
		m.MinDF, m.MaxDF, m.PhraseMinCount, m.PhraseThreshold, string(params),
		m.DocumentCount, m.VocabularySize)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}

	if err := insertTopics(ctx, tx, run.Topics); err != nil {
		return err
	}
	if err := insertWeights(ctx, tx, run.Weights); err != nil {
		return err
	}
	if err := insertSnippets(ctx, tx, run.Snippets); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTopics(ctx context.Context, tx *sql.Tx, topics []store.Topic) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO topics (id, model_id, label, top_terms, coverage, topic_rank) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range topics {
		terms, err := json.Marshal(t.TopTerms)
		if err != nil {
			return fmt.Errorf("encode terms of topic %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.ModelID, t.Label, string(terms), t.Coverage, t.Rank); err != nil {
			return fmt.Errorf("insert topic %s: %w", t.ID, err)
		}
	}
	return nil
}

func insertWeights(ctx context.Context, tx *sql.Tx, weights []store.DocumentWeight) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO topic_document_weights (model_id, document_id, topic_id, weight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, w := range weights {
		if _, err := stmt.ExecContext(ctx, w.ModelID, w.DocumentID, w.TopicID, w.Weight); err != nil {
			return fmt.Errorf("insert weight %s/%s: %w", w.DocumentID, w.TopicID, err)
		}
	}
	return nil
}

func insertSnippets(ctx context.Context, tx *sql.Tx, snippets []store.Snippet) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO topic_snippets (id, model_id, topic_id, url, domain, title, text, score) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, sn := range snippets {
		if _, err := stmt.ExecContext(ctx, sn.ID, sn.ModelID, sn.TopicID, sn.URL, sn.Domain, sn.Title, sn.Text, sn.Score); err != nil {
			return fmt.Errorf("insert snippet %s: %w", sn.ID, err)
		}
	}
	return nil
}

// DeleteModel removes a model; its topics, weights and snippets cascade.
func (s *sqliteStore) DeleteModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM topic_models WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete model", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("delete model", err)
	}
	if n == 0 {
		return fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

const modelColumns = `id, corpus_id, algorithm, created_at, k, coherence, min_df, max_df,
	phrase_min_count, phrase_threshold, params, document_count, vocabulary_size`

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner) (store.Model, error) {
	var (
		m       store.Model
		created string
		params  sql.NullString
	)
	err := row.Scan(&m.ID, &m.CorpusID, &m.Algorithm, &created, &m.K, &m.Coherence, &m.MinDF, &m.MaxDF,
		&m.PhraseMinCount, &m.PhraseThreshold, &params, &m.DocumentCount, &m.VocabularySize)
	if err != nil {
		return store.Model{}, err
	}
	if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return store.Model{}, fmt.Errorf("parse created_at of %s: %w", m.ID, err)
	}
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &m.Params); err != nil {
			return store.Model{}, fmt.Errorf("decode params of %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func (s *sqliteStore) GetModel(ctx context.Context, id string) (store.Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM topic_models WHERE id = ?`, id)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Model{}, fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	return m, err
}

func (s *sqliteStore) LatestModel(ctx context.Context, corpusID string) (store.Model, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM topic_models
WHERE corpus_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, corpusID)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Model{}, false, nil
	}
	if err != nil {
		return store.Model{}, false, err
	}
	return m, true, nil
}

func (s *sqliteStore) ListModels(ctx context.Context, corpusID string, limit int) ([]store.Model, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM topic_models
WHERE corpus_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, corpusID, limit)
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

func (s *sqliteStore) TopicsByModel(ctx context.Context, modelID string) ([]store.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, model_id, label, top_terms, coverage, topic_rank FROM topics
WHERE model_id = ? ORDER BY topic_rank`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []store.Topic
	for rows.Next() {
		var (
			t     store.Topic
			terms string
		)
		if err := rows.Scan(&t.ID, &t.ModelID, &t.Label, &terms, &t.Coverage, &t.Rank); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(terms), &t.TopTerms); err != nil {
			return nil, fmt.Errorf("decode terms of topic %s: %w", t.ID, err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *sqliteStore) SnippetsByTopic(ctx context.Context, topicID string) ([]store.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, model_id, topic_id, url, domain, title, text, score FROM topic_snippets
WHERE topic_id = ? ORDER BY score DESC, id`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snippets []store.Snippet
	for rows.Next() {
		var (
			sn                 store.Snippet
			url, domain, title sql.NullString
		)
		if err := rows.Scan(&sn.ID, &sn.ModelID, &sn.TopicID, &url, &domain, &title, &sn.Text, &sn.Score); err != nil {
			return nil, err
		}
		sn.URL, sn.Domain, sn.Title = url.String, domain.String, title.String
		snippets = append(snippets, sn)
	}
	return snippets, rows.Err()
}

func (s *sqliteStore) DocumentWeights(ctx context.Context, modelID string) ([]store.DocumentWeight, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT model_id, document_id, topic_id, weight FROM topic_document_weights
WHERE model_id = ? ORDER BY document_id, topic_id`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []store.DocumentWeight
	for rows.Next() {
		var w store.DocumentWeight
		if err := rows.Scan(&w.ModelID, &w.DocumentID, &w.TopicID, &w.Weight); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}
