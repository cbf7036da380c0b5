package memory

import (
	"context"
	"sync"

	"github.com/jordanlanch/reportdb/pkg/models"
)

// MetadataStore is an in-memory metadata catalog. Used by tests and local
// development; production deployments use the postgres store.
type MetadataStore struct {
	mu            sync.RWMutex
	fields        map[int]models.Field
	tables        map[int]models.DataTable
	relationships []models.FieldRelationship
}

// NewMetadataStore creates an empty in-memory metadata store
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		fields: make(map[int]models.Field),
		tables: make(map[int]models.DataTable),
	}
}

// AddField registers a field
func (s *MetadataStore) AddField(f models.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[f.ID] = f
}

// AddTable registers a table
func (s *MetadataStore) AddTable(t models.DataTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.ID] = t
}

// AddRelationship registers a relationship. Insertion order is preserved,
// which keeps join planning deterministic.
func (s *MetadataStore) AddRelationship(r models.FieldRelationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships = append(s.relationships, r)
}

// FieldsByIDs returns the fields that exist among ids, in a stable order
func (s *MetadataStore) FieldsByIDs(ctx context.Context, ids []int) ([]models.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Field
	for _, id := range ids {
		if f, ok := s.fields[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// TablesByIDs returns the tables that exist among ids
func (s *MetadataStore) TablesByIDs(ctx context.Context, ids []int) ([]models.DataTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DataTable
	for _, id := range ids {
		if t, ok := s.tables[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// RelationshipsForFields returns every relationship whose source or target
// is in fieldIDs, in insertion order.
func (s *MetadataStore) RelationshipsForFields(ctx context.Context, fieldIDs []int) ([]models.FieldRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int]bool, len(fieldIDs))
	for _, id := range fieldIDs {
		wanted[id] = true
	}

	var out []models.FieldRelationship
	for _, r := range s.relationships {
		if wanted[r.SourceFieldID] || wanted[r.TargetFieldID] {
			out = append(out, r)
		}
	}
	return out, nil
}
