package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	embmistral "github.com/miabe-ai/campusgpt/internal/adapters/driven/embedding/mistral"
	llmmistral "github.com/miabe-ai/campusgpt/internal/adapters/driven/llm/mistral"
	llmopenai "github.com/miabe-ai/campusgpt/internal/adapters/driven/llm/openai"
	"github.com/miabe-ai/campusgpt/internal/adapters/driven/storage/sqlite"
	"github.com/miabe-ai/campusgpt/internal/adapters/driving/httpapi"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/core/services"
	"github.com/miabe-ai/campusgpt/internal/logger"
	"github.com/miabe-ai/campusgpt/internal/vectorstore/flat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversational assistant over HTTP",
	Long: `Loads the vector index and starts the HTTP API: GET / for
status, POST /chat for a streamed answer.

Requires OPENAI_API_KEY and MISTRAL_API_KEY in the environment.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Models.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	if cfg.Models.MistralKey == "" {
		return errors.New("MISTRAL_API_KEY is not set")
	}

	index, err := flat.Load(cfg.Index.VectorStoreDir)
	if err != nil {
		return fmt.Errorf("load vector store (run `campusgpt index` first): %w", err)
	}
	logger.Info("vector store loaded: %d vectors of %d dims", index.Len(), index.Dims())

	embedder, err := embmistral.NewEmbeddingService(embmistral.Config{
		APIKey: cfg.Models.MistralKey,
		Model:  cfg.Models.EmbeddingModel,
	})
	if err != nil {
		return err
	}
	answerer, err := llmopenai.NewLLMService(llmopenai.Config{
		APIKey: cfg.Models.OpenAIKey,
		Model:  cfg.Models.CompletionModel,
	})
	if err != nil {
		return err
	}
	classifier, err := llmmistral.NewLLMService(llmmistral.Config{
		APIKey: cfg.Models.MistralKey,
		Model:  cfg.Models.ClassifierModel,
	})
	if err != nil {
		return err
	}
	rewriter, err := llmmistral.NewLLMService(llmmistral.Config{
		APIKey: cfg.Models.MistralKey,
		Model:  cfg.Models.RewriterModel,
	})
	if err != nil {
		return err
	}

	var sessions driven.SessionStore
	if cfg.Server.SessionDBPath != "" {
		sessions, err = sqlite.NewStore(cfg.Server.SessionDBPath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer sessions.Close()
		logger.Info("session persistence enabled at %s", cfg.Server.SessionDBPath)
	}

	retriever := services.NewRetriever(index, embedder, cfg.Chat.SearchK)
	bot := services.NewChatbot(cfg.ContextName, retriever, answerer, classifier, rewriter)
	api := httpapi.NewServer(bot, sessions, cfg.ContextName)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cmd.Printf("Listening on %s\n", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		cmd.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
