package refindex

import (
	"context"
	"fmt"
	"log"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const namespace = "reference-material"

// Service retrieves reference-material excerpts from the vector index so the
// tutor can ground explanations in the learner's own sources.
type Service struct {
	client    *pinecone.Client
	embedder  embeddings.Embedder
	indexName string
}

func NewService(apiKey, openaiAPIKey, indexName string) (*Service, error) {
	log.Printf("[INFO] Initializing reference index service")

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	llm, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(openaiAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	service := &Service{
		client:    pc,
		embedder:  embedder,
		indexName: indexName,
	}

	log.Printf("[INFO] Reference index service initialized")
	return service, nil
}

// QueryReferences embeds the query and returns the most relevant excerpts,
// each prefixed with its [RID §loc] citation tag so the model can cite it.
func (s *Service) QueryReferences(ctx context.Context, query string, limit int) ([]string, error) {
	log.Printf("[INFO] Querying reference index: %.80q (limit %d)", query, limit)

	idxDesc, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", err)
	}

	idxConn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      idxDesc.Host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	queryEmbeddings, err := s.embedder.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	result, err := idxConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          queryEmbeddings[0],
		TopK:            uint32(limit),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}

	var chunks []string
	for _, match := range result.Matches {
		if match.Vector.Metadata == nil {
			continue
		}
		metadata := match.Vector.Metadata.AsMap()

		content, ok := metadata["content"].(string)
		if !ok || content == "" {
			continue
		}

		tag := ""
		if rid, ok := metadata["rid"].(string); ok && rid != "" {
			loc, _ := metadata["loc"].(string)
			tag = fmt.Sprintf("[%s §%s] ", rid, loc)
		}
		if title, ok := metadata["title"].(string); ok && title != "" {
			tag += title + ": "
		}
		chunks = append(chunks, tag+content)
	}

	log.Printf("[INFO] Retrieved %d reference chunks", len(chunks))
	return chunks, nil
}
