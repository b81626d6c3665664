package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

// Outcome labels for answered questions. They feed the askdb_questions_total
// metric and the answer payload.
const (
	OutcomeAnswered         = "answered"
	OutcomeNotAnswerable    = "not_answerable"
	OutcomeTranslationError = "translation_error"
	OutcomeExecutionError   = "execution_error"
	OutcomeEmpty            = "empty"
)

const (
	apologyText  = "I'm sorry, I couldn't generate a valid SQL query for that question based on the available data."
	writeAckText = "Query executed successfully."
)

// SchemaSource is the slice of the catalog the agent needs to describe the
// database to the model.
type SchemaSource interface {
	ListTables(ctx context.Context) ([]catalog.Table, error)
	SampleRows(ctx context.Context, table string, limit int) (catalog.Sample, error)
}

type Config struct {
	// Provider names the configured translator for metrics and logs.
	Provider string
	// SampleRows is how many example rows per table go into the prompt.
	SampleRows  int
	RowLimit    int
	AllowWrites bool
}

// Answer is the full outcome of one question, whatever happened along the way.
type Answer struct {
	Question     string   `json:"question"`
	SQL          string   `json:"sql,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Outcome      string   `json:"outcome"`
	Text         string   `json:"text"`
	DurationMS   int64    `json:"duration_ms"`
}

// Service turns English questions into executed SQL and a readable reply.
type Service struct {
	schema     SchemaSource
	translator nl2sql.Translator
	engine     query.Engine
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

func NewService(schema SchemaSource, translator nl2sql.Translator, engine query.Engine, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		schema:     schema,
		translator: translator,
		engine:     engine,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Ask runs the full question pipeline. Translation and execution failures
// become answers with an explanatory text rather than errors; only missing
// input or a broken catalog surface as errors.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question is required")
	}

	start := s.now()
	translated, terminal, err := s.translateQuestion(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	var answer Answer
	if terminal != nil {
		answer = *terminal
	} else {
		answer = s.execute(ctx, question, translated)
	}
	answer.DurationMS = s.now().Sub(start).Milliseconds()
	observability.ObserveQuestion(answer.Outcome)
	s.logger.Info("question processed",
		slog.String("outcome", answer.Outcome),
		slog.String("sql", answer.SQL),
		slog.Int64("duration_ms", answer.DurationMS),
	)
	return answer, nil
}

// Translate runs only the question-to-SQL step and returns the raw
// translation, including nl2sql.ErrNotAnswerable when the model declines.
func (s *Service) Translate(ctx context.Context, question string) (nl2sql.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nl2sql.Result{}, fmt.Errorf("question is required")
	}
	tables, err := s.tableContext(ctx)
	if err != nil {
		return nl2sql.Result{}, fmt.Errorf("describe schema: %w", err)
	}
	translateStart := time.Now()
	result, err := s.translator.Translate(ctx, nl2sql.Request{Question: question, Tables: tables})
	observability.ObserveTranslation(s.cfg.Provider, time.Since(translateStart), err)
	return result, err
}

// translateQuestion returns either a usable translation or a terminal answer
// explaining why there is none.
func (s *Service) translateQuestion(ctx context.Context, question string) (nl2sql.Result, *Answer, error) {
	tables, err := s.tableContext(ctx)
	if err != nil {
		return nl2sql.Result{}, nil, fmt.Errorf("describe schema: %w", err)
	}

	translateStart := time.Now()
	result, err := s.translator.Translate(ctx, nl2sql.Request{Question: question, Tables: tables})
	observability.ObserveTranslation(s.cfg.Provider, time.Since(translateStart), err)
	if errors.Is(err, nl2sql.ErrNotAnswerable) {
		return nl2sql.Result{}, &Answer{
			Question: question,
			Outcome:  OutcomeNotAnswerable,
			Text:     apologyText,
		}, nil
	}
	if err != nil {
		s.logger.Warn("translation failed", slog.String("provider", s.cfg.Provider), slog.Any("error", err))
		return nl2sql.Result{}, &Answer{
			Question: question,
			Outcome:  OutcomeTranslationError,
			Text:     apologyText,
		}, nil
	}
	return result, nil, nil
}

func (s *Service) execute(ctx context.Context, question string, translated nl2sql.Result) Answer {
	answer := Answer{
		Question: question,
		SQL:      translated.SQL,
		Provider: translated.Provider,
		Model:    translated.Model,
	}

	result, err := s.engine.Execute(ctx, query.Request{
		SQL:         translated.SQL,
		RowLimit:    s.cfg.RowLimit,
		AllowWrites: s.cfg.AllowWrites,
	})
	if err != nil {
		s.logger.Warn("generated query failed", slog.String("sql", translated.SQL), slog.Any("error", err))
		answer.Outcome = OutcomeExecutionError
		answer.Text = fmt.Sprintf("I encountered an error while fetching data: %s", err)
		return answer
	}

	if !result.ReadOnly {
		answer.Outcome = OutcomeAnswered
		answer.RowsAffected = result.RowsAffected
		answer.Text = writeAckText
		return answer
	}

	answer.Columns = result.Columns
	answer.Rows = result.Rows
	if len(result.Rows) == 0 {
		answer.Outcome = OutcomeEmpty
		answer.Text = fmt.Sprintf("I couldn't find any results for your question: '%s'.", question)
		return answer
	}

	answer.Outcome = OutcomeAnswered
	answer.Text = FormatTable(question, result.Columns, result.Rows)
	return answer
}

func (s *Service) tableContext(ctx context.Context) ([]nl2sql.TableContext, error) {
	tables, err := s.schema.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	contexts := make([]nl2sql.TableContext, 0, len(tables))
	for _, table := range tables {
		tc := nl2sql.TableContext{TableName: table.Name}
		for _, col := range table.Columns {
			tc.Columns = append(tc.Columns, nl2sql.ColumnContext{Name: col.Name, Type: col.Type})
		}
		if s.cfg.SampleRows > 0 {
			sample, err := s.schema.SampleRows(ctx, table.Name, s.cfg.SampleRows)
			if err != nil {
				s.logger.Warn("sample rows unavailable", slog.String("table", table.Name), slog.Any("error", err))
			} else {
				tc.SampleRows = sample.Rows
			}
		}
		contexts = append(contexts, tc)
	}
	return contexts, nil
}
