package main

import (
	"context"
	"crypto/sha1"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"autodidact/config"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/protobuf/types/known/structpb"
)

const namespace = "reference-material"

// ReferenceChunk is one heading-delimited slice of a reference document,
// addressable by its [RID §loc] tag.
type ReferenceChunk struct {
	ID      string
	RID     string
	Loc     string
	Title   string
	Section string
	Content string
}

func main() {
	dir := flag.String("dir", ".", "directory of markdown reference files to index")
	flag.Parse()

	log.Printf("[INFO] Starting reference indexing process")

	cfg := config.Load()

	pineconeAPIKey := cfg.PineconeAPIKey
	if pineconeAPIKey == "" {
		log.Fatal("[ERROR] PINECONE_API_KEY environment variable is required")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("[ERROR] OPENAI_API_KEY environment variable is required")
	}

	llm, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(cfg.OpenAIAPIKey),
	)
	if err != nil {
		log.Fatalf("[ERROR] Failed to create OpenAI client: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		log.Fatalf("[ERROR] Failed to create embedder: %v", err)
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: pineconeAPIKey,
	})
	if err != nil {
		log.Fatalf("[ERROR] Failed to create Pinecone client: %v", err)
	}

	if err := ensurePineconeIndex(pc, cfg.PineconeIndexName); err != nil {
		log.Fatalf("[ERROR] Failed to ensure Pinecone index: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.md"))
	if err != nil {
		log.Fatalf("[ERROR] Failed to list reference files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("[ERROR] No markdown files found in %s", *dir)
	}
	log.Printf("[INFO] Found %d reference files in %s", len(files), *dir)

	for i, path := range files {
		log.Printf("[INFO] Processing file %d/%d: %s", i+1, len(files), path)
		if err := processFile(pc, cfg.PineconeIndexName, path, embedder); err != nil {
			log.Printf("[ERROR] Failed to process %s: %v", path, err)
			continue
		}
		log.Printf("[INFO] Successfully processed %s", path)
	}

	log.Printf("[INFO] Reference indexing process completed")
}

func ensurePineconeIndex(pc *pinecone.Client, indexName string) error {
	ctx := context.Background()

	indexes, err := pc.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == indexName {
			log.Printf("[INFO] Index %s already exists", indexName)
			return nil
		}
	}

	log.Printf("[INFO] Creating Pinecone index: %s", indexName)
	dimension := int32(1536) // OpenAI ada-002 embedding dimension
	deletionProtection := pinecone.DeletionProtectionDisabled
	metric := pinecone.Cosine

	_, err = pc.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:               indexName,
		Dimension:          &dimension,
		Metric:             &metric,
		Cloud:              pinecone.Aws,
		Region:             "us-east-1",
		DeletionProtection: &deletionProtection,
		Tags:               &pinecone.IndexTags{"environment": "development", "project": "autodidact-references"},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for {
		idx, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return fmt.Errorf("failed to describe index: %w", err)
		}
		if idx.Status.Ready {
			log.Printf("[INFO] Index %s is ready", indexName)
			break
		}
		log.Printf("[INFO] Waiting for index %s to be ready...", indexName)
		time.Sleep(10 * time.Second)
	}

	return nil
}

func processFile(pc *pinecone.Client, indexName, path string, embedder embeddings.Embedder) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rid := referenceID(title)
	chunks := chunkMarkdownByHeadings(rid, title, string(raw))
	if len(chunks) == 0 {
		log.Printf("[INFO] No chunks created for %s", path)
		return nil
	}
	log.Printf("[INFO] Created %d chunks for %s (rid %s)", len(chunks), path, rid)

	ctx := context.Background()
	idxDesc, err := pc.DescribeIndex(ctx, indexName)
	if err != nil {
		return fmt.Errorf("failed to describe index: %w", err)
	}
	idxConn, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      idxDesc.Host,
		Namespace: namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to create index connection: %w", err)
	}

	for i, chunk := range chunks {
		vector, err := createVector(ctx, chunk, embedder)
		if err != nil {
			return fmt.Errorf("failed to create vector for chunk %d: %w", i+1, err)
		}
		if _, err := idxConn.UpsertVectors(ctx, []*pinecone.Vector{vector}); err != nil {
			return fmt.Errorf("failed to upsert chunk %d: %w", i+1, err)
		}
		log.Printf("[INFO] Upserted chunk %d/%d [%s §%s]", i+1, len(chunks), chunk.RID, chunk.Loc)
	}
	return nil
}

// referenceID is a stable short id derived from the document title, so
// re-indexing overwrites rather than duplicates.
func referenceID(title string) string {
	sum := sha1.Sum([]byte(title))
	return fmt.Sprintf("%x", sum[:4])
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// chunkMarkdownByHeadings splits a document at its headings; the loc of each
// chunk is its ordinal position per heading level, e.g. "2.3" for the third
// subsection of the second section.
func chunkMarkdownByHeadings(rid, title, content string) []ReferenceChunk {
	var chunks []ReferenceChunk
	var current strings.Builder
	var section string
	counters := make([]int, 6)
	loc := "0"

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, ReferenceChunk{
				ID:      fmt.Sprintf("%s_chunk_%d", rid, len(chunks)),
				RID:     rid,
				Loc:     loc,
				Title:   title,
				Section: section,
				Content: text,
			})
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			section = m[2]
			counters[level-1]++
			for i := level; i < len(counters); i++ {
				counters[i] = 0
			}
			parts := make([]string, 0, level)
			for i := 0; i < level; i++ {
				parts = append(parts, fmt.Sprintf("%d", counters[i]))
			}
			loc = strings.Join(parts, ".")
		}
		current.WriteString(line + "\n")
	}
	flush()

	return chunks
}

func createVector(ctx context.Context, chunk ReferenceChunk, embedder embeddings.Embedder) (*pinecone.Vector, error) {
	combinedText := fmt.Sprintf("Title: %s\nSection: %s\n\n%s", chunk.Title, chunk.Section, chunk.Content)

	vectors, err := embedder.EmbedDocuments(ctx, []string{combinedText})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	metadata, err := structpb.NewStruct(map[string]any{
		"rid":        chunk.RID,
		"loc":        chunk.Loc,
		"title":      chunk.Title,
		"section":    chunk.Section,
		"content":    chunk.Content,
		"created_at": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata struct for chunk %s: %w", chunk.ID, err)
	}

	return &pinecone.Vector{
		Id:       chunk.ID,
		Values:   &vectors[0],
		Metadata: metadata,
	}, nil
}
