package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

// Streaming stages, in emission order. A question that cannot be translated
// skips straight from thinking to the answer.
const (
	StageThinking  = "thinking"
	StageSQL       = "sql"
	StageExecuting = "executing"
	StageAnswer    = "answer"
	StageComplete  = "complete"
)

type Event struct {
	Stage   string  `json:"stage"`
	Message string  `json:"message,omitempty"`
	SQL     string  `json:"sql,omitempty"`
	Answer  *Answer `json:"answer,omitempty"`
}

// AskStream runs the same pipeline as Ask but reports progress through emit.
// An emit error aborts the stream, for clients that disconnected mid-answer.
func (s *Service) AskStream(ctx context.Context, question string, emit func(Event) error) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("question is required")
	}

	if err := emit(Event{Stage: StageThinking, Message: "Thinking..."}); err != nil {
		return err
	}

	start := s.now()
	translated, terminal, err := s.translateQuestion(ctx, question)
	if err != nil {
		return err
	}
	if terminal != nil {
		terminal.DurationMS = s.now().Sub(start).Milliseconds()
		observability.ObserveQuestion(terminal.Outcome)
		return emit(Event{Stage: StageAnswer, Message: terminal.Text, Answer: terminal})
	}

	if err := emit(Event{Stage: StageSQL, Message: fmt.Sprintf("Generated SQL query: `%s`", translated.SQL), SQL: translated.SQL}); err != nil {
		return err
	}
	if err := emit(Event{Stage: StageExecuting, Message: "Fetching data..."}); err != nil {
		return err
	}

	answer := s.execute(ctx, question, translated)
	answer.DurationMS = s.now().Sub(start).Milliseconds()
	observability.ObserveQuestion(answer.Outcome)
	if err := emit(Event{Stage: StageAnswer, Message: answer.Text, Answer: &answer}); err != nil {
		return err
	}
	return emit(Event{Stage: StageComplete, Message: "Process complete."})
}
