// Package store persists evaluation runs to SQLite and serves run history
// for the drift detector and CLI reporting.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/evalwatch/internal/drift"
	"github.com/haasonsaas/evalwatch/internal/eval"
	"github.com/haasonsaas/evalwatch/internal/observability"
	"github.com/haasonsaas/evalwatch/internal/rag"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	model            TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	evaluation_ms    INTEGER NOT NULL,
	accuracy         REAL NOT NULL,
	avg_latency_ms   INTEGER NOT NULL,
	question_count   INTEGER NOT NULL,
	error            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_model_created ON runs(model, created_at DESC);

CREATE TABLE IF NOT EXISTS results (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	question_id      TEXT NOT NULL,
	category         TEXT NOT NULL,
	input            TEXT NOT NULL,
	expected_output  TEXT NOT NULL,
	model_response   TEXT,
	score            REAL NOT NULL,
	reasoning        TEXT NOT NULL,
	latency_ms       INTEGER,
	retry_count      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);

CREATE TABLE IF NOT EXISTS rag_runs (
	id                  TEXT PRIMARY KEY,
	model               TEXT NOT NULL,
	created_at          TIMESTAMP NOT NULL,
	evaluation_ms       INTEGER NOT NULL,
	avg_recall          REAL NOT NULL,
	avg_precision       REAL NOT NULL,
	avg_mrr             REAL NOT NULL,
	avg_answer_score    REAL NOT NULL,
	avg_grounding_score REAL NOT NULL,
	question_count      INTEGER NOT NULL,
	error               TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_rag_runs_model_created ON rag_runs(model, created_at DESC);

CREATE TABLE IF NOT EXISTS rag_results (
	run_id              TEXT NOT NULL REFERENCES rag_runs(id),
	question_id         TEXT NOT NULL,
	category            TEXT NOT NULL,
	input               TEXT NOT NULL,
	expected_output     TEXT NOT NULL,
	answer              TEXT,
	precision_at_k      REAL NOT NULL,
	recall_at_k         REAL NOT NULL,
	f1_at_k             REAL NOT NULL,
	mrr                 REAL NOT NULL,
	avg_similarity      REAL NOT NULL,
	answer_score        REAL NOT NULL,
	answer_reasoning    TEXT NOT NULL,
	grounding_score     REAL NOT NULL,
	grounding_reasoning TEXT NOT NULL,
	retrieval_ms        INTEGER NOT NULL,
	generation_ms       INTEGER NOT NULL,
	judge_ms            INTEGER NOT NULL,
	retry_count         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rag_results_run ON rag_results(run_id);
`

// Store persists runs to a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
	newID  func() string
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *observability.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// modernc's driver serializes writes; one connection avoids SQLITE_BUSY
	// under the harness's concurrent savers.
	db.SetMaxOpenConns(1)

	s := NewWithDB(db, logger)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle; used by tests.
func NewWithDB(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores one text-evaluation model run and all its per-question
// results in a single transaction, returning the generated run ID.
func (s *Store) SaveRun(ctx context.Context, run *eval.ModelRun) (string, error) {
	runID := s.newID()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, model, created_at, evaluation_ms, accuracy, avg_latency_ms, question_count, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, run.Model, s.now().UTC(), run.EvaluationTime.Milliseconds(),
			run.Accuracy(), run.AvgLatency().Milliseconds(), len(run.Results), run.Err)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, res := range run.Results {
			var latencyMS *int64
			if res.Latency != nil {
				ms := res.Latency.Milliseconds()
				latencyMS = &ms
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO results (run_id, question_id, category, input, expected_output, model_response, score, reasoning, latency_ms, retry_count)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, res.QuestionID, res.Category, res.Input, res.ExpectedOutput,
				res.ModelResponse, res.Score, res.Reasoning, latencyMS, res.RetryCount)
			if err != nil {
				return fmt.Errorf("insert result %s: %w", res.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// SaveRAGRun stores one RAG model run with per-question retrieval metrics
// and judged scores in a single transaction.
func (s *Store) SaveRAGRun(ctx context.Context, run *rag.ModelRun) (string, error) {
	runID := s.newID()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rag_runs (id, model, created_at, evaluation_ms, avg_recall, avg_precision, avg_mrr, avg_answer_score, avg_grounding_score, question_count, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, run.Model, s.now().UTC(), run.EvaluationTime.Milliseconds(),
			run.AvgRecall(), run.AvgPrecision(), run.AvgMRR(),
			run.AvgAnswerScore(), run.AvgGroundingScore(), len(run.Results), run.Err)
		if err != nil {
			return fmt.Errorf("insert rag run: %w", err)
		}
		for _, res := range run.Results {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO rag_results (run_id, question_id, category, input, expected_output, answer, precision_at_k, recall_at_k, f1_at_k, mrr, avg_similarity, answer_score, answer_reasoning, grounding_score, grounding_reasoning, retrieval_ms, generation_ms, judge_ms, retry_count)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, res.QuestionID, res.Category, res.Input, res.ExpectedOutput, res.Answer,
				res.Retrieval.PrecisionAtK, res.Retrieval.RecallAtK, res.Retrieval.F1AtK,
				res.Retrieval.MRR, res.Retrieval.AvgSimilarity,
				res.AnswerScore, res.AnswerReasoning, res.GroundingScore, res.GroundingReasoning,
				res.RetrievalTime.Milliseconds(), res.GenerationTime.Milliseconds(),
				res.JudgeTime.Milliseconds(), res.RetryCount)
			if err != nil {
				return fmt.Errorf("insert rag result %s: %w", res.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunsByModel returns the newest text-run accuracy records for a model.
// A limit of 0 returns the full history.
func (s *Store) RunsByModel(ctx context.Context, model string, limit int) ([]drift.Record, error) {
	return s.queryHistory(ctx,
		`SELECT id, created_at, accuracy FROM runs WHERE model = ? ORDER BY created_at DESC`,
		model, limit)
}

// RAGRunsByModel returns the newest RAG-run average-recall records for a
// model. A limit of 0 returns the full history.
func (s *Store) RAGRunsByModel(ctx context.Context, model string, limit int) ([]drift.Record, error) {
	return s.queryHistory(ctx,
		`SELECT id, created_at, avg_recall FROM rag_runs WHERE model = ? ORDER BY created_at DESC`,
		model, limit)
}

// TextHistory serves accuracy history for the drift detector.
func (s *Store) TextHistory() drift.History {
	return historyFunc(s.RunsByModel)
}

// RAGHistory serves average-recall history for the drift detector.
func (s *Store) RAGHistory() drift.History {
	return historyFunc(s.RAGRunsByModel)
}

type historyFunc func(ctx context.Context, model string, limit int) ([]drift.Record, error)

func (f historyFunc) Runs(ctx context.Context, model string, limit int) ([]drift.Record, error) {
	return f(ctx, model, limit)
}

func (s *Store) queryHistory(ctx context.Context, query, model string, limit int) ([]drift.Record, error) {
	args := []any{model}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var records []drift.Record
	for rows.Next() {
		var rec drift.Record
		if err := rows.Scan(&rec.RunID, &rec.Timestamp, &rec.Metric); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunSummary is one stored run's headline row for CLI reporting.
type RunSummary struct {
	ID            string
	Model         string
	Kind          string // "text" or "rag"
	CreatedAt     time.Time
	Metric        float64 // accuracy or avg_recall
	QuestionCount int
	Err           string
}

// RecentRuns lists the newest runs across both run kinds, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, 'text' AS kind, created_at, accuracy AS metric, question_count, error FROM runs
		 UNION ALL
		 SELECT id, model, 'rag' AS kind, created_at, avg_recall AS metric, question_count, error FROM rag_runs
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		if err := rows.Scan(&sum.ID, &sum.Model, &sum.Kind, &sum.CreatedAt, &sum.Metric, &sum.QuestionCount, &sum.Err); err != nil {
			return nil, fmt.Errorf("scan recent run: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
