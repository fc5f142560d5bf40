package domain

import "fmt"

// IntentCatalogEntry describes one classifiable intent category: a
// human-readable description plus example utterances. The centroid for
// the category is the mean of the embeddings of the description and all
// examples.
type IntentCatalogEntry struct {
	ID          string
	Name        string
	Description string
	Examples    []string
}

// IntentCentroid is the mean embedding vector representing an intent
// category. Centroids are built once at startup and are immutable for
// the lifetime of a run.
type IntentCentroid struct {
	ID     string
	Name   string
	Vector []float32
}

// Classification is the outcome of scoring a query against the catalog.
type Classification struct {
	IntentID   string
	IntentName string
	Confidence float64 // [0,1], mapped from cosine similarity
	Fallback   bool    // true when the result was overridden to the fallback category
}

// ScorePct maps the confidence to the 0-100 integer scale recorded on
// message audit rows.
func (c Classification) ScorePct() int {
	pct := int(c.Confidence*100 + 0.5)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ValidateIntentCatalogEntry validates an IntentCatalogEntry instance
func ValidateIntentCatalogEntry(e *IntentCatalogEntry) error {
	if e == nil {
		return fmt.Errorf("intent catalog entry cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("intent catalog entry ID is required")
	}

	if e.Name == "" {
		return fmt.Errorf("intent catalog entry Name is required")
	}

	if e.Description == "" && len(e.Examples) == 0 {
		return fmt.Errorf("intent catalog entry %s needs a description or examples", e.ID)
	}

	return nil
}
