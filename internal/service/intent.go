package service

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/telemetry"
)

// FallbackIntent is assigned when no centroid clears the confidence
// threshold.
const FallbackIntent = "general"

// DefaultIntentThreshold is the minimum classification confidence before
// falling back.
const DefaultIntentThreshold = 0.55

// DefaultIntentCatalog returns the built-in set of supported intents.
// Descriptions and examples seed the centroid for each intent.
func DefaultIntentCatalog() []domain.IntentCatalogEntry {
	return []domain.IntentCatalogEntry{
		{
			ID:          "cheque_book",
			Name:        "cheque_book",
			Description: "Requesting a new cheque book or asking about cheque book issuance",
			Examples: []string{
				"I need a new cheque book",
				"how do I order a chequebook",
				"can you send me a cheque book",
			},
		},
		{
			ID:          "branch_hours",
			Name:        "branch_hours",
			Description: "Asking about branch opening hours, timings, or locations",
			Examples: []string{
				"what time does the branch open",
				"are you open on Saturday",
				"nearest branch to me",
			},
		},
		{
			ID:          "card_block",
			Name:        "card_block",
			Description: "Reporting a lost or stolen card or asking to block a card",
			Examples: []string{
				"I lost my card, block it please",
				"my card was stolen",
				"freeze my debit card",
			},
		},
		{
			ID:          "cards",
			Name:        "cards",
			Description: "Questions about credit or debit card products, fees, and benefits",
			Examples: []string{
				"what credit cards do you offer",
				"annual fee on the platinum card",
				"cashback on debit card purchases",
			},
		},
		{
			ID:          "loans",
			Name:        "loans",
			Description: "Questions about personal loans, rates, eligibility, and repayment",
			Examples: []string{
				"what is the interest rate on personal loans",
				"am I eligible for a loan",
				"how do I repay my loan early",
			},
		},
		{
			ID:          "accounts",
			Name:        "accounts",
			Description: "Questions about opening, closing, or managing bank accounts",
			Examples: []string{
				"how do I open a savings account",
				"close my current account",
				"what documents do I need for an account",
			},
		},
		{
			ID:          "balance_requirement",
			Name:        "balance_requirement",
			Description: "Questions about minimum balance requirements and related charges",
			Examples: []string{
				"what is the minimum balance",
				"is there a fee if my balance drops",
				"minimum salary to open an account",
			},
		},
		{
			ID:          "general",
			Name:        "general",
			Description: "General enquiries, greetings, and anything not covered elsewhere",
			Examples: []string{
				"hello",
				"I have a question",
				"can you help me",
			},
		},
	}
}

// IntentService classifies inbound text against per-intent centroids.
// Centroids are held in memory and rebuilt on demand, so classification
// itself costs one embedding call.
type IntentService struct {
	embedder  EmbeddingClient
	catalog   []domain.IntentCatalogEntry
	threshold float64
	fallback  string

	mu        sync.RWMutex
	centroids []domain.IntentCentroid
}

func NewIntentService(embedder EmbeddingClient, catalog []domain.IntentCatalogEntry, threshold float64, fallback string) *IntentService {
	if len(catalog) == 0 {
		catalog = DefaultIntentCatalog()
	}
	if threshold <= 0 {
		threshold = DefaultIntentThreshold
	}
	if fallback == "" {
		fallback = FallbackIntent
	}
	return &IntentService{
		embedder:  embedder,
		catalog:   catalog,
		threshold: threshold,
		fallback:  fallback,
	}
}

// Catalog returns the configured intent entries.
func (s *IntentService) Catalog() []domain.IntentCatalogEntry {
	return s.catalog
}

// Rebuild recomputes every centroid as the mean of the embeddings of the
// intent's description and examples.
func (s *IntentService) Rebuild(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "IntentService.Rebuild", telemetry.SpanAttributes{
		Operation: "rebuild",
	})
	defer span.End()

	centroids := make([]domain.IntentCentroid, 0, len(s.catalog))
	for _, entry := range s.catalog {
		texts := make([]string, 0, len(entry.Examples)+1)
		if strings.TrimSpace(entry.Description) != "" {
			texts = append(texts, entry.Description)
		}
		texts = append(texts, entry.Examples...)

		var sum []float32
		var n int
		for _, text := range texts {
			vec, err := s.embedder.GenerateEmbedding(ctx, text)
			if err != nil {
				return err
			}
			if sum == nil {
				sum = make([]float32, len(vec))
			}
			for i := range vec {
				sum[i] += vec[i]
			}
			n++
		}
		if n == 0 {
			continue
		}
		for i := range sum {
			sum[i] /= float32(n)
		}

		centroids = append(centroids, domain.IntentCentroid{
			ID:     entry.ID,
			Name:   entry.Name,
			Vector: sum,
		})
	}

	s.mu.Lock()
	s.centroids = centroids
	s.mu.Unlock()

	return nil
}

// Ready reports whether centroids have been built.
func (s *IntentService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.centroids) > 0
}

// Classify embeds the text and delegates to ClassifyVector.
func (s *IntentService) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	ctx, span := telemetry.StartSpan(ctx, "IntentService.Classify", telemetry.SpanAttributes{
		Operation: "classify",
	})
	defer span.End()

	vec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	return s.ClassifyVector(vec), nil
}

// ClassifyVector picks the nearest centroid by cosine similarity.
// Confidence is the similarity mapped from [-1, 1] into [0, 1]. When the
// best confidence is below the threshold and the best match is not
// already the fallback intent, the result is overridden to the fallback
// at the computed low confidence. Ties resolve to the earlier catalog
// entry so classification is deterministic.
func (s *IntentService) ClassifyVector(vec []float32) *domain.Classification {
	s.mu.RLock()
	centroids := s.centroids
	s.mu.RUnlock()

	if len(centroids) == 0 {
		return &domain.Classification{
			IntentID:   s.fallback,
			IntentName: s.fallback,
			Confidence: 0,
			Fallback:   true,
		}
	}

	best := 0
	bestSim := math.Inf(-1)
	for i, centroid := range centroids {
		sim := cosineSimilarity(vec, centroid.Vector)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}

	confidence := (bestSim + 1) / 2
	if confidence < s.threshold && centroids[best].Name != s.fallback {
		return &domain.Classification{
			IntentID:   s.fallback,
			IntentName: s.fallback,
			Confidence: confidence,
			Fallback:   true,
		}
	}

	return &domain.Classification{
		IntentID:   centroids[best].ID,
		IntentName: centroids[best].Name,
		Confidence: confidence,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
