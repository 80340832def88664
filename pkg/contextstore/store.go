package contextstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"unicode/utf8"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

// Store indexes task text in Chroma so extraction can show the model
// what similar work already exists for the organization. Optional: a
// nil *Store is safe to call everywhere.
type Store struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	collection chroma.Collection
}

// Options carries Chroma Cloud connection settings.
type Options struct {
	APIKey       string
	Tenant       string
	Database     string
	GeminiAPIKey string
}

func New(opts Options) (*Store, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	if opts.GeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", opts.GeminiAPIKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding function: %w", err)
	}

	var client chroma.Client
	if opts.Database != "" && opts.Tenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
			chroma.WithDatabaseAndTenant(opts.Database, opts.Tenant),
		)
	} else if opts.Tenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
			chroma.WithTenant(opts.Tenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		"tasks",
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[ContextStore] Initialized Chroma collection: tasks")

	return &Store{client: client, embedFunc: embedFunc, collection: collection}, nil
}

// IndexTask upserts the task text keyed by task ID. Re-indexing the same
// task overwrites instead of duplicating.
func (s *Store) IndexTask(ctx context.Context, taskID, orgKey, title, description string) error {
	if s == nil {
		return nil
	}

	text := fmt.Sprintf("Title: %s\n\n%s", title, description)
	if len(text) > 10000 {
		// Back off to a rune boundary so the cut never splits a rune.
		cut := 10000
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"org_key": orgKey,
		"title":   title,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = s.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(taskID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to index task: %w", err)
	}
	return nil
}

// SimilarTaskIDs returns IDs of indexed tasks closest to the query text,
// scoped to a single organization.
func (s *Store) SimilarTaskIDs(ctx context.Context, orgKey, query string, limit int) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	results, err := s.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("org_key", orgKey)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}
	return ids, nil
}

// Remove drops a task from the index.
func (s *Store) Remove(ctx context.Context, taskID string) error {
	if s == nil {
		return nil
	}
	if err := s.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(taskID))); err != nil {
		return fmt.Errorf("failed to delete from index: %w", err)
	}
	return nil
}
