package services

import (
	"context"
	"strings"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

// Generation parameters per pipeline stage, matching the roles: the
// classifier must be deterministic and terse, the rewriter mildly
// creative, the answerer balanced.
var (
	classifierOpts = driven.GenerateOptions{MaxTokens: 10, Temperature: 0.0}
	rewriterOpts   = driven.GenerateOptions{MaxTokens: 100, Temperature: 0.5}
	answerOpts     = driven.GenerateOptions{MaxTokens: 1000, Temperature: 0.4}
)

// Chatbot orchestrates the conversation pipeline:
// rewrite the question with history, classify its intent, then either
// stream a retrieval-grounded answer or a canned multilingual reply.
//
// Every stage degrades instead of failing: a rewriter outage falls
// back to the original question, a classifier outage to the general
// question path, and an answerer outage to an apology line. The only
// error Answer returns is the consumer's own emit error.
type Chatbot struct {
	contextName string

	retriever  *Retriever
	answerer   driven.LLMService
	classifier driven.LLMService
	rewriter   driven.LLMService
}

// NewChatbot wires the pipeline. answerer generates final replies;
// classifier and rewriter run the cheap preparatory stages.
func NewChatbot(contextName string, retriever *Retriever, answerer, classifier, rewriter driven.LLMService) *Chatbot {
	return &Chatbot{
		contextName: contextName,
		retriever:   retriever,
		answerer:    answerer,
		classifier:  classifier,
		rewriter:    rewriter,
	}
}

// Answer runs the pipeline for one question, streaming the reply
// through emit fragment by fragment.
func (c *Chatbot) Answer(ctx context.Context, question string, history []domain.ChatMessage, emit func(string) error) error {
	logger.Info("question received (%d history turns)", len(history))

	rewritten := c.rewriteQuery(ctx, history, question)
	intent := c.classifyIntent(ctx, rewritten)
	logger.Info("intent %q for rewritten question", intent)

	answers := predefinedAnswers(c.contextName)
	if canned, ok := answers[intent]; ok {
		return c.streamPredefined(ctx, question, intent, canned, emit)
	}
	if intent == domain.IntentGeneralQuestion {
		return c.streamAnswer(ctx, question, rewritten, history, emit)
	}
	return emit(msgNotUnderstood)
}

// rewriteQuery makes the question self-contained using the transcript.
// On any failure the original question is used as-is.
func (c *Chatbot) rewriteQuery(ctx context.Context, history []domain.ChatMessage, question string) string {
	if len(history) == 0 {
		return question
	}
	prompt := renderPrompt(rewriterTemplate, map[string]string{
		"context_name": c.contextName,
		"history":      formatHistory(history),
		"question":     question,
	})
	rewritten, err := c.rewriter.Generate(ctx, prompt, rewriterOpts)
	if err != nil {
		logger.Warn("query rewrite failed, using original question: %v", err)
		return question
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question
	}
	logger.Debug("rewritten question: %q", rewritten)
	return rewritten
}

// classifyIntent asks the classifier model for a category. Failures
// and out-of-vocabulary replies both land on the general question
// path, the only one that can actually help.
func (c *Chatbot) classifyIntent(ctx context.Context, question string) domain.Intent {
	categories := make([]string, len(domain.IntentCategories))
	for i, cat := range domain.IntentCategories {
		categories[i] = string(cat)
	}
	prompt := renderPrompt(classifierTemplate, map[string]string{
		"context_name": c.contextName,
		"categories":   strings.Join(categories, ", "),
		"question":     question,
	})
	raw, err := c.classifier.Generate(ctx, prompt, classifierOpts)
	if err != nil {
		logger.Warn("intent classification failed, assuming general question: %v", err)
		return domain.IntentGeneralQuestion
	}
	return domain.ParseIntent(strings.TrimSpace(raw))
}

// streamAnswer retrieves context for the rewritten question and
// streams a grounded reply. The original question goes into the
// prompt so the model answers in the user's language and register.
func (c *Chatbot) streamAnswer(ctx context.Context, question, rewritten string, history []domain.ChatMessage, emit func(string) error) error {
	hits, err := c.retriever.Retrieve(ctx, rewritten)
	if err != nil {
		logger.Error("retrieval failed: %v", err)
		return emit(msgTechnicalError)
	}
	if len(hits) == 0 {
		return emit(msgNoInformation)
	}

	prompt := renderPrompt(answerTemplate, map[string]string{
		"context_name": c.contextName,
		"history":      formatHistory(history),
		"context":      formatContext(hits),
		"question":     question,
	})
	return c.stream(ctx, prompt, emit)
}

// streamPredefined restates a canned French answer in the user's
// language. A generation failure falls back to the canned text
// verbatim rather than surfacing an error for a greeting.
func (c *Chatbot) streamPredefined(ctx context.Context, question string, intent domain.Intent, canned string, emit func(string) error) error {
	prompt := renderPrompt(predefinedTemplate, map[string]string{
		"question":      question,
		"intent":        string(intent),
		"french_answer": canned,
	})

	var consumerErr error
	wrapped := func(fragment string) error {
		if err := emit(fragment); err != nil {
			consumerErr = err
			return err
		}
		return nil
	}
	if err := c.answerer.GenerateStream(ctx, prompt, answerOpts, wrapped); err != nil {
		if consumerErr != nil {
			return consumerErr
		}
		logger.Warn("predefined answer generation failed, sending canned text: %v", err)
		return emit(canned)
	}
	return nil
}

// stream runs the answerer, separating a dropped consumer (whose error
// is propagated) from a provider failure (turned into an apology).
func (c *Chatbot) stream(ctx context.Context, prompt string, emit func(string) error) error {
	var consumerErr error
	emitted := false
	wrapped := func(fragment string) error {
		if err := emit(fragment); err != nil {
			consumerErr = err
			return err
		}
		emitted = true
		return nil
	}
	if err := c.answerer.GenerateStream(ctx, prompt, answerOpts, wrapped); err != nil {
		if consumerErr != nil {
			return consumerErr
		}
		logger.Error("answer generation failed: %v", err)
		if emitted {
			// mid-stream failure: the apology tail is better than a
			// silent truncation
			return emit("\n\n" + msgTechnicalError)
		}
		return emit(msgTechnicalError)
	}
	return nil
}

// formatContext renders retrieved chunks as the prompt's source blocks.
func formatContext(hits []domain.ScoredChunk) string {
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		source := hit.Metadata.Source
		if source == "" {
			source = "N/A"
		}
		blocks[i] = "Source: " + source + "\nContenu: " + hit.Text
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
