package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/hair-advisor/internal/advisor"
	"github.com/kozaktomas/hair-advisor/internal/database"
	"github.com/kozaktomas/hair-advisor/internal/database/memory"
	"github.com/kozaktomas/hair-advisor/internal/database/postgres"
)

var recommenderCmd = &cobra.Command{
	Use:   "recommender",
	Short: "Start the recommendation service",
	Long: `Start the recommendation service the quiz submits to.
It accepts a hair profile and an optional photo on POST /analyze_and_recommend,
describes the photo with the configured AI provider, picks matching passages from
the product knowledge base and asks the model for a product line recommendation.
Follow-up questions about a recommendation are answered on POST /chat.

Passages are ranked by embedding similarity, or by term overlap with
ADVISOR_RETRIEVAL=lexical. Submissions are stored in PostgreSQL when DATABASE_URL
is set and kept in memory otherwise.`,
	RunE: runRecommender,
}

func init() {
	rootCmd.AddCommand(recommenderCmd)

	recommenderCmd.Flags().Int("port", 0, "Port to listen on (overrides ADVISOR_PORT)")
	recommenderCmd.Flags().String("host", "", "Host to bind to (overrides ADVISOR_HOST)")
	recommenderCmd.Flags().String("provider", "", "AI provider: gemini or openai (overrides ADVISOR_PROVIDER)")
	recommenderCmd.Flags().String("knowledge", "", "Directory of *.txt knowledge files (overrides ADVISOR_KNOWLEDGE_DIR)")
	recommenderCmd.Flags().String("chat-knowledge", "", "Directory of *.txt chat knowledge files (overrides ADVISOR_CHAT_KNOWLEDGE_DIR)")
	recommenderCmd.Flags().String("retrieval", "", "Passage ranking: embedding or lexical (overrides ADVISOR_RETRIEVAL)")
}

func runRecommender(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Advisor.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Advisor.Host = host
	}
	if provider := mustGetString(cmd, "provider"); provider != "" {
		cfg.Advisor.Provider = provider
	}
	if dir := mustGetString(cmd, "knowledge"); dir != "" {
		cfg.Advisor.KnowledgeDir = dir
	}
	if dir := mustGetString(cmd, "chat-knowledge"); dir != "" {
		cfg.Advisor.ChatDir = dir
	}
	if retrieval := mustGetString(cmd, "retrieval"); retrieval != "" {
		cfg.Advisor.Retrieval = retrieval
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := advisor.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}

	kb, err := loadKnowledge(cfg.Advisor.KnowledgeDir, advisor.DefaultKnowledge)
	if err != nil {
		return err
	}
	chatKB, err := loadKnowledge(cfg.Advisor.ChatDir, advisor.DefaultChatKnowledge)
	if err != nil {
		return err
	}
	log.WithField("passages", kb.Len()).WithField("chat_passages", chatKB.Len()).Info("knowledge base loaded")

	opts := advisor.Options{
		Knowledge:     kb,
		ChatKnowledge: chatKB,
		TopK:          cfg.Advisor.TopK,
		Pricing:       cfg.GetModelPricing(provider.Model()).Standard,
		Logger:        log,
	}
	if cfg.Advisor.Retrieval == "embedding" {
		opts.Index, opts.ChatIndex = buildIndexes(ctx, provider, kb, chatKB, log)
	}

	pool, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	var store database.SubmissionWriter = memory.NewSubmissionStore()
	if pool != nil {
		defer pool.Close()
		store = postgres.NewSubmissionRepository(pool)
		log.Info("submission storage enabled (PostgreSQL)")
	}
	opts.Store = store

	svc := advisor.New(provider, opts)
	handler := advisor.NewHandler(svc, store, log)
	server := advisor.NewServer(handler, cfg.Advisor.Host, cfg.Advisor.Port, cfg.Web.AllowedOrigins, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("error during shutdown")
		}
	}()

	log.WithField("provider", provider.Name()).WithField("model", provider.Model()).Info("starting recommendation service")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

func loadKnowledge(dir string, builtin func() *advisor.KnowledgeBase) (*advisor.KnowledgeBase, error) {
	if dir == "" {
		return builtin(), nil
	}
	return advisor.LoadKnowledge(dir)
}

// buildIndexes embeds both knowledge bases. A base that cannot be embedded is served
// with lexical ranking.
func buildIndexes(ctx context.Context, e advisor.Embedder, kb, chatKB *advisor.KnowledgeBase, log logrus.FieldLogger) (*advisor.VectorIndex, *advisor.VectorIndex) {
	build := func(name string, kb *advisor.KnowledgeBase) *advisor.VectorIndex {
		idx, err := advisor.NewVectorIndex(ctx, e, kb)
		if err != nil {
			log.WithError(err).WithField("knowledge", name).Warn("could not embed knowledge base, ranking lexically")
			return nil
		}
		log.WithField("knowledge", name).Info("knowledge base embedded")
		return idx
	}
	return build("products", kb), build("chat", chatKB)
}
