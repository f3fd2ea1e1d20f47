package projector

import (
	"context"
	"fmt"
	"sort"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// GetEvents returns the mirrored credit events named name, oldest first.
// An empty name returns every credit event ordered by block.
func (w *Writer) GetEvents(ctx context.Context, name string) ([]projection.EventRecord, error) {
	names := ledger.CreditEvents
	if name != "" {
		if !ledger.IsCreditEvent(name) {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown credit event %q", name)).
				WithDetails("allowed", ledger.CreditEvents)
		}
		names = []string{name}
	}

	var out []projection.EventRecord
	for _, n := range names {
		entries, err := w.store.List(ctx, projection.EventLog(n))
		if err != nil {
			return nil, apperrors.Upstream("projection", err)
		}
		for _, e := range entries {
			var rec projection.EventRecord
			if err := e.Decode(&rec); err != nil {
				return nil, apperrors.Upstream("projection", fmt.Errorf("decode event %s/%s: %w", n, e.Key, err))
			}
			out = append(out, rec)
		}
	}
	if len(names) > 1 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	}
	return out, nil
}
