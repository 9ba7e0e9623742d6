// Package relation resolves populate paths on result rows. Each expansion
// batches its reference lookups through a dataloader so a page of rows
// costs one storage round trip per relation, not one per row.
package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/opsgrid/backoffice/internal/query"
)

// BatchFetcher loads a batch of records by id, scoped to tenant and
// entity type. The storage layer provides this.
type BatchFetcher interface {
	GetByIDs(ctx context.Context, tenantID uuid.UUID, entityType string, ids []string, match []query.Clause) ([]map[string]any, error)
}

// Expander implements query.Expander by embedding related records under
// their expansion path on each row.
type Expander struct {
	fetcher BatchFetcher
	wait    time.Duration
}

func NewExpander(fetcher BatchFetcher) *Expander {
	return &Expander{fetcher: fetcher, wait: 5 * time.Millisecond}
}

func (e *Expander) Expand(ctx context.Context, sec query.SecurityContext, expansions []query.Expansion, rows []map[string]any) error {
	for _, exp := range expansions {
		if err := e.expandOne(ctx, sec, exp, rows); err != nil {
			return fmt.Errorf("expand %s: %w", exp.Path, err)
		}
	}
	return nil
}

func (e *Expander) expandOne(ctx context.Context, sec query.SecurityContext, exp query.Expansion, rows []map[string]any) error {
	loader := e.newLoader(sec.TenantID, exp)

	// Queue every thunk before resolving any so the loader batches the
	// whole page into one fetch.
	thunks := make([]dataloader.Thunk, len(rows))
	for i, row := range rows {
		ref, ok := row[exp.RefField].(string)
		if !ok || ref == "" {
			continue
		}
		thunks[i] = loader.Load(ctx, dataloader.StringKey(ref))
	}

	for i, thunk := range thunks {
		if thunk == nil {
			continue
		}
		related, err := thunk()
		if err != nil {
			return err
		}
		if related == nil {
			rows[i][exp.Path] = nil
			continue
		}
		rows[i][exp.Path] = projectFields(related.(map[string]any), exp.Fields)
	}
	return nil
}

func (e *Expander) newLoader(tenantID uuid.UUID, exp query.Expansion) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.String()
		}

		records, err := e.fetcher.GetByIDs(ctx, tenantID, exp.TargetType, ids, exp.Match)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[string]map[string]any, len(records))
		for _, rec := range records {
			if id, ok := rec["id"].(string); ok {
				byID[id] = rec
			}
		}

		// Missing references resolve to nil, not errors: a dangling id
		// must not fail the whole page.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if rec, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: rec}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	return dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(e.wait))
}

// projectFields trims a related record to the expansion's declared field
// set; an empty set embeds the full record.
func projectFields(rec map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return rec
	}
	keep := map[string]bool{"id": true}
	for _, f := range fields {
		keep[f] = true
	}
	out := make(map[string]any, len(keep))
	for k, v := range rec {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}
