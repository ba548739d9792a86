package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/evalwatch/internal/eval"
	"github.com/haasonsaas/evalwatch/internal/observability"
	"github.com/haasonsaas/evalwatch/internal/rag"
	"github.com/haasonsaas/evalwatch/internal/retriever"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewWithDB(db, observability.NopLogger())
	s.newID = func() string { return "run-fixed" }
	s.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func textRun() *eval.ModelRun {
	resp := "Paris"
	latency := 800 * time.Millisecond
	return &eval.ModelRun{
		Model:          "gpt-4o",
		EvaluationTime: 3 * time.Second,
		Results: []eval.Result{
			{
				QuestionID:     "1",
				Category:       "geography",
				Input:          "Capital of France?",
				ExpectedOutput: "Paris",
				ModelResponse:  &resp,
				Score:          1.0,
				Reasoning:      "exact match",
				Latency:        &latency,
			},
			{
				QuestionID:     "2",
				Category:       "geography",
				Input:          "Capital of Spain?",
				ExpectedOutput: "Madrid",
				Reasoning:      "failed after 2 retries: timeout",
				RetryCount:     2,
			},
		},
	}
}

func TestSaveRun(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-fixed", "gpt-4o", sqlmock.AnyArg(), int64(3000), 0.5, sqlmock.AnyArg(), 2, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("run-fixed", "1", "geography", "Capital of France?", "Paris",
			sqlmock.AnyArg(), 1.0, "exact match", sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("run-fixed", "2", "geography", "Capital of Spain?", "Madrid",
			nil, 0.0, "failed after 2 retries: timeout", nil, 2).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	runID, err := s.SaveRun(context.Background(), textRun())
	if err != nil {
		t.Fatal(err)
	}
	if runID != "run-fixed" {
		t.Fatalf("run id = %q", runID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveRunRollsBackOnFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO results").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	if _, err := s.SaveRun(context.Background(), textRun()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveRAGRun(t *testing.T) {
	s, mock := newTestStore(t)
	answer := "30 days"
	run := &rag.ModelRun{
		Model:          "gpt-4o",
		EvaluationTime: 5 * time.Second,
		Results: []rag.Result{{
			QuestionID:     "r1",
			Category:       "returns",
			Input:          "Return window?",
			ExpectedOutput: "30 days",
			Answer:         &answer,
			Retrieval:      retriever.Metrics{PrecisionAtK: 0.2, RecallAtK: 1.0, F1AtK: 1.0 / 3, MRR: 1.0, AvgSimilarity: 0.8},
			AnswerScore:    1.0, AnswerReasoning: "correct",
			GroundingScore: 0.9, GroundingReasoning: "supported",
			RetrievalTime:  50 * time.Millisecond,
			GenerationTime: 900 * time.Millisecond,
			JudgeTime:      400 * time.Millisecond,
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rag_runs").
		WithArgs("run-fixed", "gpt-4o", sqlmock.AnyArg(), int64(5000),
			1.0, 0.2, 1.0, 1.0, 0.9, 1, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rag_results").
		WithArgs("run-fixed", "r1", "returns", "Return window?", "30 days", sqlmock.AnyArg(),
			0.2, 1.0, 1.0/3, 1.0, 0.8, 1.0, "correct", 0.9, "supported",
			int64(50), int64(900), int64(400), 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	runID, err := s.SaveRAGRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if runID != "run-fixed" {
		t.Fatalf("run id = %q", runID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTextHistory(t *testing.T) {
	s, mock := newTestStore(t)
	created := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, created_at, accuracy FROM runs").
		WithArgs("gpt-4o", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "accuracy"}).
			AddRow("r2", created.Add(time.Hour), 0.85).
			AddRow("r1", created, 0.90))

	records, err := s.TextHistory().Runs(context.Background(), "gpt-4o", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].RunID != "r2" || records[0].Metric != 0.85 {
		t.Fatalf("first record = %+v", records[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunsByModelUnlimited(t *testing.T) {
	s, mock := newTestStore(t)
	created := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	// Limit 0 queries the full history with no LIMIT clause.
	mock.ExpectQuery(`SELECT id, created_at, accuracy FROM runs WHERE model = \? ORDER BY created_at DESC$`).
		WithArgs("gpt-4o").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "accuracy"}).
			AddRow("r3", created.Add(2*time.Hour), 0.70).
			AddRow("r2", created.Add(time.Hour), 0.85).
			AddRow("r1", created, 0.95))

	records, err := s.RunsByModel(context.Background(), "gpt-4o", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d", len(records))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRAGHistoryEmpty(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT id, created_at, avg_recall FROM rag_runs").
		WithArgs("gpt-4o", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "avg_recall"}))

	records, err := s.RAGHistory().Runs(context.Background(), "gpt-4o", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestRecentRuns(t *testing.T) {
	s, mock := newTestStore(t)
	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, model, 'text' AS kind").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "model", "kind", "created_at", "metric", "question_count", "error"}).
			AddRow("r1", "gpt-4o", "text", created, 0.9, 15, "").
			AddRow("g1", "gpt-4o", "rag", created.Add(-time.Hour), 0.8, 5, ""))

	summaries, err := s.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d", len(summaries))
	}
	if summaries[0].Kind != "text" || summaries[1].Kind != "rag" {
		t.Fatalf("kinds = %s/%s", summaries[0].Kind, summaries[1].Kind)
	}
}
