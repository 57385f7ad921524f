package ingest

import (
	"context"
	"strings"
	"unicode"

	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/internal/vault/embedding"
	"github.com/Mootikins/crucible/internal/vault/note"
	"github.com/Mootikins/crucible/internal/vault/store"
	"github.com/Mootikins/crucible/pkg/logger"
)

// readingWPM is the words-per-minute baseline for the reading_time
// enrichment property.
const readingWPM = 200

// IngestEnriched runs Ingest, then the embedding seam: one batch per
// run covering the changed blocks. The structural enrichment properties
// (reading_time, complexity_score, language) are written by Ingest
// itself — they do not depend on a provider. Embedding failures are
// per-item and never fail the ingest.
func (ing *Ingestor) IngestEnriched(ctx context.Context, n *note.ParsedNote, relPath string, provider embedding.Provider) (*Result, error) {
	res, err := ing.Ingest(ctx, n, relPath)
	if err != nil {
		return nil, err
	}
	if res.Unchanged {
		return res, nil
	}

	if provider != nil && len(res.ChangedBlocks) > 0 {
		ing.embedBlocks(ctx, res.EntityID, res.ChangedBlocks, provider)
	}
	return res, nil
}

// embedBlocks writes one embedding property per successfully embedded
// block and emits the per-item outcome events.
func (ing *Ingestor) embedBlocks(ctx context.Context, id store.EntityID, blocks []store.BlockNode, provider embedding.Provider) {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Content
	}

	results, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("[Ingestor] embedding batch failed for %s: %v", id, err)
		for _, b := range blocks {
			ing.publish(event.EmbeddingFailed{EntityID: string(id), BlockID: b.ID, Error: err.Error()})
		}
		return
	}

	for _, r := range results {
		block := blocks[r.Index]
		if r.Err != nil {
			ing.publish(event.EmbeddingFailed{EntityID: string(id), BlockID: block.ID, Error: r.Err.Error()})
			continue
		}
		err := ing.store.UpsertProperty(store.Property{
			EntityID:  store.EntityID(block.ID),
			Namespace: "enrichment",
			Key:       "embedding",
			Value: store.JSONValue(map[string]interface{}{
				"vector":     r.Embedding.Vector,
				"dimensions": r.Embedding.Dimensions,
				"model":      r.Embedding.Model,
			}),
		})
		if err != nil {
			ing.publish(event.EmbeddingFailed{EntityID: string(id), BlockID: block.ID, Error: err.Error()})
			continue
		}
		ing.publish(event.EmbeddingStored{
			EntityID:   string(id),
			BlockID:    block.ID,
			Model:      r.Embedding.Model,
			Dimensions: r.Embedding.Dimensions,
		})
	}
}

// writeEnrichmentProperties computes reading_time, complexity_score,
// and the optional frontmatter language.
func (ing *Ingestor) writeEnrichmentProperties(id store.EntityID, n *note.ParsedNote) error {
	words := 0
	for _, b := range n.Blocks() {
		words += countWords(b.Content)
	}
	minutes := words / readingWPM
	if words > 0 && minutes == 0 {
		minutes = 1
	}

	props := []store.Property{
		{EntityID: id, Namespace: "enrichment", Key: "reading_time", Value: store.NumberValue(float64(minutes))},
		{EntityID: id, Namespace: "enrichment", Key: "complexity_score", Value: store.NumberValue(noteComplexity(n))},
	}
	if lang, ok := n.Frontmatter["language"].(string); ok && lang != "" {
		props = append(props, store.Property{
			EntityID: id, Namespace: "enrichment", Key: "language", Value: store.TextValue(lang),
		})
	}
	for _, p := range props {
		if err := ing.store.UpsertProperty(p); err != nil {
			return ing.storeErr(id, "upsert_property", err)
		}
	}
	return nil
}

// noteComplexity is a coarse structural score: the heading count, code
// and latex blocks weighted double, plus wikilink and tag counts.
func noteComplexity(n *note.ParsedNote) float64 {
	score := 0
	if len(n.Headings) > 0 {
		score += len(n.Headings)
	}
	score += len(n.CodeBlocks) * 2
	score += len(n.Latex) * 2
	score += len(n.WikiLinks)
	score += len(n.Tags)
	return float64(score)
}

func countWords(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	}))
}
