package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/docsync/ai"
)

// maxAPIBatch is the BatchEmbedContents request limit.
const maxAPIBatch = 100

// Embedder implements ai.Embedder using the Gemini embedding API.
type Embedder struct {
	client       *genai.Client
	model        string
	maxBatchSize int
	logger       *slog.Logger
}

func newEmbedder(client *genai.Client, config *ai.Config) *Embedder {
	size := config.MaxBatchSize
	if size <= 0 || size > maxAPIBatch {
		size = maxAPIBatch
	}
	return &Embedder{
		client:       client,
		model:        config.EmbeddingModel,
		maxBatchSize: size,
		logger:       slog.Default().With("component", "gemini-embedder"),
	}
}

// EmbedText generates a query embedding for a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, ai.ErrEmptyEmbedding
	}
	return resp.Embedding.Values, nil
}

// EmbedTexts generates document embeddings, one request per batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	return ai.EmbedInBatches(ctx, texts, e.maxBatchSize, e.embedBatch)
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, emb.Values)
	}
	return out, nil
}
