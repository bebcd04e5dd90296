package chroma

import (
	"context"
	"fmt"
	"os"

	"decisionlog-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	"go.uber.org/zap"
)

const collectionName = "decisions"

// Document is one decision as indexed for semantic lookup.
type Document struct {
	DecisionID string
	UserID     string
	OwnerEmail string
	Topic      string
	Text       string
}

// ChromaClient keeps confirmed decisions in a Chroma Cloud collection
// embedded with Gemini text embeddings.
type ChromaClient struct {
	client     chroma.Client
	collection chroma.Collection
	log        *zap.Logger
}

func NewChromaClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	// The embedding function reads its key from the environment.
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	case cfg.ChromaTenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	default:
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Named("chroma").Info("collection ready", zap.String("collection", collectionName))
	return &ChromaClient{client: client, collection: collection, log: log.Named("chroma")}, nil
}

// Upsert stores or replaces the embedding for a decision.
func (c *ChromaClient) Upsert(ctx context.Context, doc Document) error {
	text := doc.Text
	if len(text) > 8000 {
		text = text[:8000]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":     doc.UserID,
		"owner_email": doc.OwnerEmail,
		"topic":       doc.Topic,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(ctx,
		chroma.WithIDs(chroma.DocumentID(doc.DecisionID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert decision embedding: %w", err)
	}
	return nil
}

// Search returns decision ids nearest to query among documents owned by
// ownerEmail, with their distances.
func (c *ChromaClient) Search(ctx context.Context, ownerEmail, query string, limit int) ([]string, []float64, error) {
	results, err := c.collection.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("owner_email", ownerEmail)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}
	var distances []float64
	if len(distanceGroups) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}
	c.log.Debug("semantic search", zap.Int("hits", len(ids)))
	return ids, distances, nil
}

// Delete removes a decision from the index.
func (c *ChromaClient) Delete(ctx context.Context, decisionID string) error {
	if err := c.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(decisionID))); err != nil {
		return fmt.Errorf("failed to delete decision embedding: %w", err)
	}
	return nil
}
