package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/telemetry"
)

const correctionSystemPrompt = "You improve grammar, casing, and punctuation of short " +
	"voice transcriptions. Do not change meaning. Output only the corrected text, " +
	"without quotes."

const generationSystemPrompt = "You are a command generator for a Linux desktop. " +
	"Translate user instructions into a JSON array of arrays of shell commands. " +
	"Use 'xdg-open' for apps and links and 'git' for repository actions. " +
	"Never output explanations; output only JSON. " +
	"Avoid destructive commands."

// LanguageModel wraps a completion client with the transcript
// correction and command generation contracts.
type LanguageModel struct {
	client Client
	logger *log.Logger
}

// NewLanguageModel builds the language collaborator.
func NewLanguageModel(client Client, logger *log.Logger) *LanguageModel {
	return &LanguageModel{client: client, logger: logger}
}

// Correct lightly repairs a transcript. The vocabulary biases the
// model toward the user's command library phrasing. Correction is
// best-effort: any collaborator failure returns the transcript
// unchanged so a down model never blocks an utterance.
func (m *LanguageModel) Correct(ctx context.Context, transcript string, vocabulary []string) string {
	ctx, span := telemetry.StartProviderSpan(ctx, m.client.Name(), "correct")
	defer span.End()

	prompt := transcript
	if len(vocabulary) > 0 {
		prompt = fmt.Sprintf(
			"Known command phrases (prefer their exact spelling when the transcription is close):\n%s\n\nTranscription:\n%s",
			strings.Join(vocabulary, "\n"), transcript)
	}

	resp, err := m.client.Complete(ctx, &CompletionRequest{
		System:      correctionSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		m.logger.Warn("transcript correction unavailable, using raw transcript",
			"provider", m.client.Name(),
			"error", err.Error(),
		)
		return transcript
	}
	telemetry.RecordSuccess(span)

	corrected := strings.TrimSpace(resp.Content)
	if corrected == "" {
		return transcript
	}
	return corrected
}

// GenerateCommands asks the model for a shell command sequence
// fulfilling the intent. Known library phrases ride along as context so
// the model prefers commands the user already relies on. Output must be
// a JSON array of argv arrays. One reprompt carrying the parse failure
// is attempted before the output is declared malformed.
func (m *LanguageModel) GenerateCommands(ctx context.Context, intent string, vocabulary []string) ([][]string, error) {
	ctx, span := telemetry.StartProviderSpan(ctx, m.client.Name(), "generate")
	defer span.End()

	prompt := fmt.Sprintf(
		"Instruction:\n%s\n\nOutput strictly a JSON array of arrays, e.g. [[\"xdg-open\", \"https://example.com\"]].",
		intent)
	if len(vocabulary) > 0 {
		prompt = fmt.Sprintf(
			"Command phrases this user has configured:\n%s\n\n%s",
			strings.Join(vocabulary, "\n"), prompt)
	}

	resp, err := m.client.Complete(ctx, &CompletionRequest{
		System:      generationSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   512,
		Temperature: 0.1,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	cmds, parseErr := ParseCommandArray(resp.Content)
	if parseErr == nil {
		telemetry.RecordSuccess(span)
		return cmds, nil
	}

	m.logger.Debug("command generation output malformed, reprompting",
		"provider", m.client.Name(),
		"error", parseErr.Error(),
	)

	retryPrompt := fmt.Sprintf(
		"%s\n\nYour previous output could not be parsed (%s). Respond again with ONLY the JSON array of arrays, nothing else.",
		prompt, parseErr)
	resp, err = m.client.Complete(ctx, &CompletionRequest{
		System:      generationSystemPrompt,
		Prompt:      retryPrompt,
		MaxTokens:   512,
		Temperature: 0.0,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	cmds, parseErr = ParseCommandArray(resp.Content)
	if parseErr != nil {
		err := errors.NewMalformedModelOutputError(m.client.Name(), parseErr)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return cmds, nil
}

// Health implements the collaborator health probe.
func (m *LanguageModel) Health(ctx context.Context) error {
	return m.client.Health(ctx)
}

// Name identifies the underlying collaborator.
func (m *LanguageModel) Name() string {
	return m.client.Name()
}
