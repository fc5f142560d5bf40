package admin

import (
	"context"
	"fmt"
	"log"
	"path"

	"github.com/cloo-solutions/converso/internal/config"
	"github.com/cloo-solutions/converso/internal/database"
	"github.com/cloo-solutions/converso/internal/openai"
	"github.com/cloo-solutions/converso/internal/repository"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/cloo-solutions/converso/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func KBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
		Long:  "Import documents and backfill embeddings for the knowledge base",
	}

	cmd.AddCommand(KBImportCmd())
	cmd.AddCommand(KBEmbedCmd())

	return cmd
}

func KBImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import documents from the S3 drop bucket",
		Long:  "List documents under the configured S3 bucket, split them into chunks and upsert them into the knowledge base",
		RunE:  runKBImport,
	}

	cmd.Flags().String("prefix", "", "Only import objects under this key prefix")

	return cmd
}

func runKBImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	prefix, _ := cmd.Flags().GetString("prefix")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasS3() {
		return fmt.Errorf("S3 document source not configured (set S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY)")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	knowledgeSvc := newKnowledgeService(cfg, pool)

	keys, err := s3Client.ListDocuments(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No documents found")
		return nil
	}

	var imported, failed int
	for _, key := range keys {
		body, err := s3Client.FetchDocument(ctx, key)
		if err != nil {
			log.Printf("kb import: fetch %s failed: %v", key, err)
			failed++
			continue
		}

		chunks, err := knowledgeSvc.IngestDocument(ctx, service.IngestDocumentInput{
			Text: string(body),
			Meta: map[string]string{
				"source":   key,
				"filename": path.Base(key),
			},
		})
		if err != nil {
			log.Printf("kb import: ingest %s failed: %v", key, err)
			failed++
			continue
		}

		fmt.Printf("Imported %s (%d chunks)\n", key, len(chunks))
		imported++
	}

	fmt.Printf("Done: %d documents imported, %d failed\n", imported, failed)
	if failed > 0 {
		return fmt.Errorf("%d documents failed to import", failed)
	}
	return nil
}

func KBEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed-missing",
		Short: "Backfill embeddings for chunks without one",
		Long:  "Generate embedding vectors for knowledge chunks that were created or edited since the last sweep",
		RunE:  runKBEmbed,
	}

	cmd.Flags().Int("limit", 0, "Maximum number of chunks to embed (0 uses the configured batch limit)")

	return cmd
}

func runKBEmbed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("embedding requires OPENAI_API_KEY")
	}
	if limit <= 0 {
		limit = cfg.EmbedBatchLimit
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	knowledgeSvc := newKnowledgeService(cfg, pool)

	result, err := knowledgeSvc.EmbedMissing(ctx, limit)
	if err != nil {
		return fmt.Errorf("embedding backfill failed: %w", err)
	}

	fmt.Printf("Embedded %d chunks (%d failed)\n", result.Embedded, result.Failed)
	return nil
}

func newKnowledgeService(cfg *config.Config, pool *pgxpool.Pool) *service.KnowledgeService {
	var embedder service.EmbeddingClient = unavailableAI{}
	if cfg.HasOpenAI() {
		embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Timeout: cfg.OpenAITimeout,
		})
	}

	chunkRepo := repository.NewChunkRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	return service.NewKnowledgeService(chunkRepo, embedder, txRunner)
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return database.NewPool(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}
