package metadata

import (
	"context"
	"fmt"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Resolver loads the metadata closure for a set of requested fields: the
// fields themselves, every table they belong to, and every relationship
// touching any of them. All store reads are batched; with hundreds of
// fields per catalog, per-field lookups would multiply request latency.
type Resolver struct {
	store domain.MetadataStore
}

// NewResolver creates a new metadata resolver
func NewResolver(store domain.MetadataStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the metadata needed to compile a query over fieldIDs.
// Fails with an UnknownFieldError if any requested id does not resolve.
// Fields referenced only by relationships are pulled in transitively.
func (r *Resolver) Resolve(ctx context.Context, fieldIDs []int) (*models.ResolvedMetadata, error) {
	if len(fieldIDs) == 0 {
		return nil, domain.NewValidationError("at least one field is required")
	}

	fields, err := r.store.FieldsByIDs(ctx, fieldIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}

	fieldMap := make(map[int]models.Field, len(fields))
	for _, f := range fields {
		fieldMap[f.ID] = f
	}
	for _, id := range fieldIDs {
		if _, ok := fieldMap[id]; !ok {
			return nil, domain.NewUnknownFieldError(id)
		}
	}

	relationships, err := r.store.RelationshipsForFields(ctx, fieldIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationships: %w", err)
	}

	// Relationships may reference fields outside the request; load those in
	// one extra batch so join columns resolve.
	var missing []int
	seenMissing := make(map[int]bool)
	for _, rel := range relationships {
		for _, id := range []int{rel.SourceFieldID, rel.TargetFieldID} {
			if _, ok := fieldMap[id]; !ok && !seenMissing[id] {
				seenMissing[id] = true
				missing = append(missing, id)
			}
		}
	}

	if len(missing) > 0 {
		related, err := r.store.FieldsByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to load relationship fields: %w", err)
		}
		for _, f := range related {
			fieldMap[f.ID] = f
		}
		// A relationship pointing at a nonexistent field is a catalog
		// integrity problem, not a caller mistake.
		for _, id := range missing {
			if _, ok := fieldMap[id]; !ok {
				return nil, domain.NewInternalError(fmt.Errorf("relationship references missing field %d", id))
			}
		}
	}

	var tableIDs []int
	seenTables := make(map[int]bool)
	for _, f := range fieldMap {
		if !seenTables[f.TableID] {
			seenTables[f.TableID] = true
			tableIDs = append(tableIDs, f.TableID)
		}
	}

	tables, err := r.store.TablesByIDs(ctx, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}

	tableMap := make(map[int]models.DataTable, len(tables))
	for _, t := range tables {
		tableMap[t.ID] = t
	}
	for _, id := range tableIDs {
		if _, ok := tableMap[id]; !ok {
			return nil, domain.NewInternalError(fmt.Errorf("field references missing table %d", id))
		}
	}

	return &models.ResolvedMetadata{
		Fields:        fieldMap,
		Tables:        tableMap,
		Relationships: relationships,
	}, nil
}

// FilterByPolicy removes restricted fields the caller may not access.
// Restricted-field filtering happens before the compiler ever sees the
// request. Returns an UnknownFieldError for a requested-but-forbidden
// field so callers cannot probe for restricted ids.
func FilterByPolicy(fieldIDs []int, policy *domain.AccessPolicy) ([]int, error) {
	if policy == nil {
		return fieldIDs, nil
	}
	for _, id := range fieldIDs {
		if !policy.AllowsField(id) {
			return nil, domain.NewUnknownFieldError(id)
		}
	}
	return fieldIDs, nil
}
