package regimen

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"tendbot/internal/sequence"
	"tendbot/internal/storage"
)

// BuildQueue decodes raw regimen items into schedule entries sorted by offset.
//
// A dangling sequence reference fails the whole build: it signals store
// corruption or an edit/execution race and must not be silently dropped.
// The sort is stable, so items with equal offsets keep their stored order.
func BuildQueue(ctx context.Context, seqs SequenceSource, items []storage.RegimenItem) ([]Entry, error) {
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		sq, err := seqs.SequenceByID(ctx, it.SequenceID)
		if err != nil {
			return nil, fmt.Errorf("item at offset %s: %w", it.TimeOffset, err)
		}
		node, err := sequence.Decode(sq.Body)
		if err != nil {
			return nil, fmt.Errorf("sequence %d %q: %w", sq.ID, sq.Name, err)
		}
		node.SetLabel(sq.Name)
		entries = append(entries, Entry{
			Name:       sq.Name,
			TimeOffset: it.TimeOffset,
			SequenceID: sq.ID,
			Token:      uuid.NewString(),
			Node:       node,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimeOffset < entries[j].TimeOffset
	})
	return entries, nil
}
