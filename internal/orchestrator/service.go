// Package orchestrator drives one submitted question through the model and
// the verification toolchain, re-prompting the model with diagnostics until
// its code is clean or the retry budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/codebot/internal/domain"
	"github.com/ashureev/codebot/internal/events"
	"github.com/ashureev/codebot/internal/extract"
	"github.com/ashureev/codebot/internal/model"
	"github.com/ashureev/codebot/internal/store"
	"github.com/ashureev/codebot/internal/toolchain"
)

// MaxAttempts is the number of follow-up prompts allowed after the first reply.
const MaxAttempts = 3

// ErrEmptyQuestion is returned for blank submissions.
var ErrEmptyQuestion = errors.New("question is empty")

// Verifier checks extracted files and reports diagnostics.
type Verifier interface {
	Run(ctx context.Context, files []domain.ExtractedFile, progress toolchain.ProgressFunc) ([]domain.Diagnostic, error)
}

// Options are passed through to every model call.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Model        string
}

// Service runs submissions.
type Service struct {
	repo     store.Repository
	model    model.Client
	verifier Verifier
	pub      events.Publisher
	opts     Options
	locks    conversationLocks
}

// NewService wires a service. All collaborators are required.
func NewService(repo store.Repository, client model.Client, verifier Verifier, pub events.Publisher, opts Options) *Service {
	return &Service{
		repo:     repo,
		model:    client,
		verifier: verifier,
		pub:      pub,
		opts:     opts,
	}
}

// Submit persists the question, asks the model, verifies any code in the
// reply and retries with diagnostics up to MaxAttempts times. Progress and
// results are published to the conversation. A model or storage fault ends the
// submission with a server error event and is returned.
func (s *Service) Submit(ctx context.Context, conversationID int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyQuestion
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	log := slog.With("conversation_id", conversationID)
	log.Info("Question submitted", "chars", len(content))

	if err := s.appendTurn(ctx, conversationID, domain.RoleUser, content, domain.TurnMeta{}); err != nil {
		return s.fail(conversationID, "Failed to save your question", err)
	}

	for attempt := 0; ; attempt++ {
		reply, err := s.ask(ctx, conversationID)
		if err != nil {
			return s.fail(conversationID, "Failed to communicate with the model", err)
		}

		meta := domain.TurnMeta{Variant: domain.VariantInfo, Attempt: attempt}
		if err := s.appendTurn(ctx, conversationID, domain.RoleAssistant, reply.Content, meta); err != nil {
			return s.fail(conversationID, "Failed to save the model's answer", err)
		}

		files := extract.Files(reply.Content)
		s.pub.Publish(conversationID, events.Answer(reply.Content, domain.VariantInfo, len(files) > 0))

		if len(files) == 0 {
			s.progress(conversationID, "No files to compile")
			s.finish(conversationID, domain.VariantSuccess, "No code to verify.")
			log.Info("Submission done without code", "attempt", attempt)
			return nil
		}

		diagnostics, err := s.verifier.Run(ctx, files, func(msg string) {
			s.progress(conversationID, msg)
		})
		if err != nil {
			return s.fail(conversationID, "Failed to prepare the verification workspace", err)
		}

		if len(diagnostics) == 0 {
			s.finish(conversationID, domain.VariantSuccess,
				fmt.Sprintf("Your code compiled without errors (%s).", fileList(files)))
			log.Info("Submission verified clean", "attempt", attempt, "files", len(files))
			return nil
		}

		s.reportSystemErrors(conversationID, diagnostics)
		joined := domain.JoinDiagnostics(diagnostics)
		log.Info("Verification found problems", "attempt", attempt, "diagnostics", len(diagnostics))

		if attempt == MaxAttempts {
			s.finish(conversationID, domain.VariantError,
				fmt.Sprintf("Your code still has errors after %d attempts:\n\n%s", MaxAttempts, joined))
			return nil
		}

		next := attempt + 1
		s.pub.Publish(conversationID, events.Answer(
			fmt.Sprintf("Found %d problem(s), asking for a fix (attempt %d/%d):\n\n%s", len(diagnostics), next, MaxAttempts, joined),
			domain.VariantError, false))

		followUp := FollowUpPrompt(next, joined)
		if err := s.appendTurn(ctx, conversationID, domain.RoleUser, followUp, domain.TurnMeta{Attempt: next}); err != nil {
			return s.fail(conversationID, "Failed to save the retry prompt", err)
		}
	}
}

// FollowUpPrompt builds the user turn that asks the model to fix diagnostics.
func FollowUpPrompt(attempt int, diagnostics string) string {
	return fmt.Sprintf(
		"There was an issue with your code suggestion. Please fix the following errors and reply with the complete corrected files. Attempt %d/%d:\n\n%s",
		attempt, MaxAttempts, diagnostics)
}

func (s *Service) ask(ctx context.Context, conversationID int64) (model.Reply, error) {
	turns, err := s.repo.ListTurns(ctx, conversationID)
	if err != nil {
		return model.Reply{}, fmt.Errorf("load history: %w", err)
	}
	return s.model.Complete(ctx, model.Request{
		Turns:        domain.Messages(turns),
		SystemPrompt: s.opts.SystemPrompt,
		MaxTokens:    s.opts.MaxTokens,
		Model:        s.opts.Model,
	})
}

func (s *Service) appendTurn(ctx context.Context, conversationID int64, role domain.Role, content string, meta domain.TurnMeta) error {
	turn := &domain.Turn{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Variant:        meta.Variant,
		Extra:          domain.EncodeMeta(meta),
	}
	return s.repo.AppendTurn(ctx, turn)
}

func (s *Service) reportSystemErrors(conversationID int64, diagnostics []domain.Diagnostic) {
	for _, d := range diagnostics {
		if !d.IsSystemError() {
			continue
		}
		slog.Error("Tool failed to run", "conversation_id", conversationID, "tool", d.Source, "error", d.SystemError)
		s.pub.Publish(conversationID, events.Answer(
			fmt.Sprintf("%s could not be run: %s", d.Source, d.SystemError), domain.VariantError, false))
	}
}

func (s *Service) progress(conversationID int64, msg string) {
	s.pub.Publish(conversationID, events.Progress(msg))
}

func (s *Service) finish(conversationID int64, variant domain.Variant, msg string) {
	s.pub.Publish(conversationID, events.Answer(msg, variant, false))
}

func (s *Service) fail(conversationID int64, msg string, err error) error {
	slog.Error("Submission failed", "conversation_id", conversationID, "error", err)
	s.pub.Publish(conversationID, events.Error(fmt.Sprintf("%s: %v", msg, err)))
	return err
}

func fileList(files []domain.ExtractedFile) string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	return strings.Join(names, ", ")
}
