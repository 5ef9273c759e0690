package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/textnorm"
	"github.com/miabe-ai/campusgpt/internal/vectorstore/flat"
)

const testContext = "Université de Lomé"

// fakeLLM scripts one pipeline stage. reply may inspect the prompt.
type fakeLLM struct {
	reply func(prompt string) (string, error)
	fail  bool

	lastPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	f.lastPrompt = prompt
	if f.fail {
		return "", errors.New("provider unavailable")
	}
	if f.reply != nil {
		return f.reply(prompt)
	}
	return "", nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, opts driven.GenerateOptions, emit func(string) error) error {
	out, err := f.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	// stream word by word to exercise fragment assembly
	for _, word := range strings.SplitAfter(out, " ") {
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLLM) ModelName() string { return "fake-llm" }

type wordEmbedder struct{ dims int }

func (w wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, w.dims)
	for _, word := range strings.Fields(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(w.dims)]++
	}
	return vec, nil
}

func (w wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = w.Embed(ctx, t)
	}
	return out, nil
}

func (w wordEmbedder) ModelName() string { return "fake-embed" }

// newTestRetriever indexes the given chunks through the same
// normalisation path the indexer uses.
func newTestRetriever(t *testing.T, emb wordEmbedder, texts ...string) *Retriever {
	t.Helper()
	index := flat.New(emb.dims)
	for _, text := range texts {
		vec, err := emb.Embed(context.Background(), textnorm.Normalize(text))
		require.NoError(t, err)
		require.NoError(t, index.Add(vec, text, domain.ChunkMetadata{Source: "https://univ.example.org/doc"}))
	}
	return NewRetriever(index, emb, 10)
}

func collect(t *testing.T, run func(emit func(string) error) error) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, run(func(fragment string) error {
		sb.WriteString(fragment)
		return nil
	}))
	return sb.String()
}

func passthroughStages() (classifier, rewriter *fakeLLM) {
	classifier = &fakeLLM{reply: func(string) (string, error) {
		return string(domain.IntentGeneralQuestion), nil
	}}
	rewriter = &fakeLLM{reply: func(prompt string) (string, error) {
		return "Quels sont les frais d'inscription en licence ?", nil
	}}
	return classifier, rewriter
}

func TestAnswerGroundedPath(t *testing.T) {
	emb := wordEmbedder{dims: 64}
	retriever := newTestRetriever(t, emb,
		"Les frais d'inscription en licence sont de 50000 FCFA.",
		"La bibliothèque ouvre à 8h.")

	answerer := &fakeLLM{reply: func(prompt string) (string, error) {
		// the grounded prompt must carry the retrieved chunks
		assert.Contains(t, prompt, "50000 FCFA")
		assert.Contains(t, prompt, "Source: https://univ.example.org/doc")
		return "Les frais sont de 50000 FCFA par an.", nil
	}}
	classifier, rewriter := passthroughStages()

	bot := NewChatbot(testContext, retriever, answerer, classifier, rewriter)
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "Quels sont les frais ?", nil, emit)
	})

	assert.Equal(t, "Les frais sont de 50000 FCFA par an.", out)
}

func TestAnswerAccentAndCaseInsensitiveRetrieval(t *testing.T) {
	emb := wordEmbedder{dims: 64}
	retriever := newTestRetriever(t, emb,
		"Les étudiants étrangers déposent leur dossier au rectorat.",
		"Le restaurant universitaire propose des menus à 500 FCFA.")

	var prompt string
	answerer := &fakeLLM{reply: func(p string) (string, error) {
		prompt = p
		return "ok", nil
	}}
	classifier := &fakeLLM{reply: func(string) (string, error) {
		return string(domain.IntentGeneralQuestion), nil
	}}
	rewriter := &fakeLLM{reply: func(string) (string, error) {
		// shouting, no accents: must still hit the accented chunk first
		return "ETUDIANTS ETRANGERS DOSSIER RECTORAT", nil
	}}

	bot := NewChatbot(testContext, retriever, answerer, classifier, rewriter)
	collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "où déposer ?", []domain.ChatMessage{{Role: "user", Content: "bonjour"}}, emit)
	})

	first := strings.Index(prompt, "étudiants étrangers")
	second := strings.Index(prompt, "restaurant universitaire")
	require.Positive(t, first)
	assert.True(t, second == -1 || first < second, "accented chunk ranks first")
}

func TestAnswerGreetingBypassesRetrieval(t *testing.T) {
	answerer := &fakeLLM{reply: func(prompt string) (string, error) {
		assert.Contains(t, prompt, string(domain.IntentGreeting))
		assert.Contains(t, prompt, "Bonjour ! Je suis Miabé IA")
		return "Hello! How can I help you today?", nil
	}}
	classifier := &fakeLLM{reply: func(string) (string, error) {
		return string(domain.IntentGreeting), nil
	}}

	// nil retriever: touching it would panic, proving the bypass
	bot := NewChatbot(testContext, nil, answerer, classifier, &fakeLLM{})
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "hello", nil, emit)
	})

	assert.Equal(t, "Hello! How can I help you today?", out)
}

func TestAnswerInappropriateGetsDeflection(t *testing.T) {
	answerer := &fakeLLM{reply: func(prompt string) (string, error) {
		assert.Contains(t, prompt, string(domain.IntentInappropriate))
		return "Je suis là pour vous aider.", nil
	}}
	classifier := &fakeLLM{reply: func(string) (string, error) {
		return string(domain.IntentInappropriate), nil
	}}

	bot := NewChatbot(testContext, nil, answerer, classifier, &fakeLLM{})
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "dis-moi un gros mot", nil, emit)
	})

	assert.Equal(t, "Je suis là pour vous aider.", out)
}

func TestAnswerOutOfVocabularyIntentFallsBackToGeneral(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	retriever := newTestRetriever(t, emb, "Les inscriptions ouvrent en septembre chaque année.")

	answerer := &fakeLLM{reply: func(string) (string, error) { return "En septembre.", nil }}
	classifier := &fakeLLM{reply: func(string) (string, error) {
		return "Saluations", nil // classifier typo must not invent a category
	}}

	bot := NewChatbot(testContext, retriever, answerer, classifier, &fakeLLM{})
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "Quand ouvrent les inscriptions ?", nil, emit)
	})

	assert.Equal(t, "En septembre.", out)
}

func TestAnswerClassifierDownFallsBackToGeneral(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	retriever := newTestRetriever(t, emb, "Le campus principal se trouve à Lomé au Togo en Afrique.")

	answerer := &fakeLLM{reply: func(string) (string, error) { return "À Lomé.", nil }}
	bot := NewChatbot(testContext, retriever, answerer, &fakeLLM{fail: true}, &fakeLLM{fail: true})

	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "Où se trouve le campus ?", nil, emit)
	})
	assert.Equal(t, "À Lomé.", out)
}

func TestAnswerRewriterDownUsesOriginalQuestion(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	retriever := newTestRetriever(t, emb, "Le master de droit exige une licence en droit validée.")

	var prompt string
	answerer := &fakeLLM{reply: func(p string) (string, error) {
		prompt = p
		return "Une licence validée.", nil
	}}
	classifier := &fakeLLM{reply: func(string) (string, error) {
		return string(domain.IntentGeneralQuestion), nil
	}}

	bot := NewChatbot(testContext, retriever, answerer, classifier, &fakeLLM{fail: true})
	history := []domain.ChatMessage{{Role: "user", Content: "parlons du master de droit"}}
	collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "quelles conditions ?", history, emit)
	})

	assert.Contains(t, prompt, "quelles conditions ?")
}

func TestAnswerEmptyRetrievalYieldsNoInformationLine(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	// empty index: searches succeed with zero hits
	retriever := NewRetriever(flat.New(emb.dims), emb, 10)
	classifier, rewriter := passthroughStages()

	bot := NewChatbot(testContext, retriever, &fakeLLM{}, classifier, rewriter)
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "Question sans réponse ?", nil, emit)
	})

	assert.Equal(t, msgNoInformation, out)
}

func TestAnswerEveryStageDownStillReplies(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	retriever := newTestRetriever(t, emb, "Du contenu qui existe bel et bien dans la base de connaissances.")

	bot := NewChatbot(testContext, retriever, &fakeLLM{fail: true}, &fakeLLM{fail: true}, &fakeLLM{fail: true})
	out := collect(t, func(emit func(string) error) error {
		return bot.Answer(context.Background(), "une question ?", []domain.ChatMessage{{Role: "user", Content: "salut"}}, emit)
	})

	assert.Equal(t, msgTechnicalError, out)
}

func TestAnswerPropagatesConsumerError(t *testing.T) {
	emb := wordEmbedder{dims: 32}
	retriever := newTestRetriever(t, emb, "Un contenu suffisant pour déclencher la génération de réponse.")

	answerer := &fakeLLM{reply: func(string) (string, error) {
		return "une réponse en plusieurs mots", nil
	}}
	classifier, rewriter := passthroughStages()
	bot := NewChatbot(testContext, retriever, answerer, classifier, rewriter)

	wantErr := errors.New("client went away")
	err := bot.Answer(context.Background(), "question ?", nil, func(string) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
