// handlers.go contains the command implementations: configuration loading,
// component wiring, and output rendering.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/evalwatch/internal/config"
	"github.com/haasonsaas/evalwatch/internal/dataset"
	"github.com/haasonsaas/evalwatch/internal/drift"
	"github.com/haasonsaas/evalwatch/internal/eval"
	"github.com/haasonsaas/evalwatch/internal/judge"
	"github.com/haasonsaas/evalwatch/internal/llm"
	"github.com/haasonsaas/evalwatch/internal/observability"
	"github.com/haasonsaas/evalwatch/internal/rag"
	"github.com/haasonsaas/evalwatch/internal/retriever"
	"github.com/haasonsaas/evalwatch/internal/retry"
	"github.com/haasonsaas/evalwatch/internal/store"
)

// app bundles the components every command starts from.
type app struct {
	cfg       *config.Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	store     *store.Store
	tracer    *observability.Tracer
	stopTrace func(context.Context) error
}

func newApp(ctx context.Context, configPath string, openStore bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	tracer, stopTrace, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
		tracer:    tracer,
		stopTrace: stopTrace,
	}
	if openStore {
		s, err := store.Open(ctx, cfg.Store.Path, logger)
		if err != nil {
			stopTrace(context.Background())
			return nil, err
		}
		a.store = s
	}
	return a, nil
}

func (a *app) close() {
	if a.stopTrace != nil {
		a.stopTrace(context.Background())
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) completer() (llm.Completer, error) {
	gw := a.cfg.Gateway
	var c llm.Completer
	var err error
	if strings.EqualFold(gw.Provider, "anthropic") {
		c, err = llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: gw.APIKey, BaseURL: gw.BaseURL})
	} else {
		c, err = llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: gw.APIKey, BaseURL: gw.BaseURL})
	}
	if err != nil {
		return nil, err
	}
	return llm.WithTracing(c, a.tracer), nil
}

func (a *app) judge(completer llm.Completer) *judge.Judge {
	return judge.New(completer, judge.Config{
		Model:          a.cfg.Judge.Model,
		MaxTokens:      a.cfg.Judge.MaxTokens,
		Timeout:        a.cfg.Judge.Timeout,
		OnParseFailure: a.metrics.JudgeParseFailures.Inc,
	})
}

func (a *app) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: a.cfg.Retry.MaxRetries,
		Backoff:    a.cfg.Retry.Backoff,
		Retryable:  llm.IsTransient,
	}
}

func (a *app) models(override []string) []string {
	if len(override) > 0 {
		return override
	}
	return a.cfg.Models
}

func runEval(ctx context.Context, configPath string, models []string, dryRun bool) error {
	a, err := newApp(ctx, configPath, !dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	questions, err := dataset.LoadGolden(a.cfg.Dataset.GoldenPath)
	if err != nil {
		return err
	}
	completer, err := a.completer()
	if err != nil {
		return err
	}

	ctx = observability.WithRunID(ctx, uuid.NewString())
	evaluator := eval.NewEvaluator(completer, a.judge(completer), a.logger, eval.EvaluatorConfig{
		Policy:      a.retryPolicy(),
		CallTimeout: a.cfg.Evaluation.CallTimeout,
		MaxTokens:   a.cfg.Evaluation.MaxTokens,
		DataDir:     a.cfg.Dataset.DataDir,
		Tracer:      a.tracer,
	})
	var saver eval.RunSaver
	if a.store != nil {
		saver = a.store
	}
	harness := eval.NewHarness(evaluator, saver, a.logger, a.metrics, eval.HarnessConfig{
		ModelWorkers:    a.cfg.Concurrency.ModelWorkers,
		QuestionWorkers: a.cfg.Concurrency.QuestionWorkers,
	})

	runs := harness.Run(ctx, a.models(models), questions)
	printRuns(runs)
	return nil
}

func runRAGEval(ctx context.Context, configPath string, models []string, dryRun bool) error {
	a, err := newApp(ctx, configPath, !dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	questions, err := dataset.LoadRAG(a.cfg.Dataset.RAGPath)
	if err != nil {
		return err
	}
	docs, err := dataset.LoadKnowledgeBase(a.cfg.Dataset.KnowledgeBasePath)
	if err != nil {
		return err
	}
	completer, err := a.completer()
	if err != nil {
		return err
	}
	embedder, err := retriever.NewOpenAIEmbedder(retriever.OpenAIEmbedderConfig{
		APIKey:  a.cfg.Gateway.APIKey,
		BaseURL: a.cfg.Gateway.BaseURL,
		Model:   a.cfg.Retrieval.EmbeddingModel,
	})
	if err != nil {
		return err
	}

	ret := retriever.New(embedder, docs, a.cfg.Retrieval.CacheDir)
	if err := ret.Build(ctx); err != nil {
		return err
	}

	ctx = observability.WithRunID(ctx, uuid.NewString())
	evaluator := rag.NewEvaluator(ret, completer, a.judge(completer), a.logger, rag.EvaluatorConfig{
		TopK:        a.cfg.Retrieval.TopK,
		Policy:      a.retryPolicy(),
		CallTimeout: a.cfg.Evaluation.CallTimeout,
		MaxTokens:   a.cfg.Evaluation.MaxTokens,
		Tracer:      a.tracer,
	})
	var saver rag.RunSaver
	if a.store != nil {
		saver = a.store
	}
	harness := rag.NewHarness(evaluator, saver, a.logger, a.metrics, eval.HarnessConfig{
		ModelWorkers:    a.cfg.Concurrency.ModelWorkers,
		QuestionWorkers: a.cfg.Concurrency.QuestionWorkers,
	})

	runs := harness.Run(ctx, a.models(models), questions)
	printRAGRuns(runs)
	return nil
}

func (a *app) detector(useRAG bool) *drift.Detector {
	history := a.store.TextHistory()
	metricName := "accuracy"
	if useRAG {
		history = a.store.RAGHistory()
		metricName = "avg_recall"
	}
	return drift.NewDetector(history, a.logger, a.metrics, drift.DetectorConfig{
		MetricName: metricName,
		Threshold:  a.cfg.Drift.Threshold,
		Window:     a.cfg.Drift.Window,
		Tracer:     a.tracer,
	})
}

func (a *app) notifier() *drift.Notifier {
	alerts := a.cfg.Drift.Alerts
	var channels []drift.Channel
	if alerts.WebhookURL != "" {
		channels = append(channels, drift.NewWebhookChannel(alerts.WebhookURL, nil))
	}
	if alerts.DiscordWebhookURL != "" {
		channels = append(channels, drift.NewDiscordChannel(alerts.DiscordWebhookURL, nil))
	}
	if alerts.SlackWebhookURL != "" {
		channels = append(channels, drift.NewSlackChannel(alerts.SlackWebhookURL))
	}
	if alerts.Email.Host != "" {
		channels = append(channels, drift.NewEmailChannel(drift.EmailConfig{
			Host:     alerts.Email.Host,
			Port:     alerts.Email.Port,
			From:     alerts.Email.From,
			To:       alerts.Email.To,
			Username: alerts.Email.Username,
			Password: alerts.Email.Password,
		}))
	}
	if len(channels) == 0 {
		return nil
	}
	return drift.NewNotifier(channels, a.logger, a.metrics)
}

func runDriftCheck(ctx context.Context, configPath string, useRAG, alert bool) error {
	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	detector := a.detector(useRAG)
	var notifier *drift.Notifier
	if alert {
		notifier = a.notifier()
	}

	drifted := 0
	for _, model := range a.cfg.Models {
		verdict, err := detector.Check(ctx, model)
		if err != nil {
			return err
		}
		fmt.Println(verdict.Summary())
		if verdict.HasDrifted {
			drifted++
			if notifier != nil {
				notifier.Notify(ctx, verdict)
			}
		}
	}
	if drifted > 0 {
		return fmt.Errorf("drift detected in %d model(s)", drifted)
	}
	return nil
}

func runDriftWatch(ctx context.Context, configPath string, useRAG bool, listenAddr string) error {
	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	// The watcher registry backs the /metrics endpoint.
	registry := prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(registry)

	watcher := drift.NewWatcher(a.detector(useRAG), a.notifier(), a.cfg.Models, a.logger)
	if err := watcher.Start(a.cfg.Drift.Schedule); err != nil {
		return err
	}
	defer func() { <-watcher.Stop().Done() }()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info(ctx, "drift watch running", "listen", listenAddr, "schedule", a.cfg.Drift.Schedule)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runRuns(ctx context.Context, configPath string, limit int) error {
	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	summaries, err := a.store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODEL\tKIND\tMETRIC\tQUESTIONS\tWHEN")
	for _, s := range summaries {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%d\t%s\n",
			id, s.Model, s.Kind, s.Metric, s.QuestionCount, s.CreatedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func printRuns(runs []*eval.ModelRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tACCURACY\tAVG LATENCY\tQUESTIONS\tELAPSED\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Err != "" {
			status = run.Err
		}
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%d\t%s\t%s\n",
			run.Model, run.Accuracy(), run.AvgLatency().Round(time.Millisecond),
			len(run.Results), run.EvaluationTime.Round(time.Millisecond), status)
	}
	w.Flush()
}

func printRAGRuns(runs []*rag.ModelRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tRECALL@K\tPRECISION@K\tMRR\tANSWER\tGROUNDING\tELAPSED\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Err != "" {
			status = run.Err
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%s\t%s\n",
			run.Model, run.AvgRecall(), run.AvgPrecision(), run.AvgMRR(),
			run.AvgAnswerScore(), run.AvgGroundingScore(),
			run.EvaluationTime.Round(time.Millisecond), status)
	}
	w.Flush()
}
