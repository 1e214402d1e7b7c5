package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorkspace(t *testing.T) *workspace.Store {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New() ошибка: %v", err)
	}
	return ws
}

// fakeStore — хранилище метаданных в памяти для тестов сервисов.
// Ошибки отдельных операций инжектируются через поля fail*.
type fakeStore struct {
	units  map[string]*model.Unit
	groups map[string]*model.ObjectGroup

	failSetUnitFields bool
	failBulk          bool
	bulkMatchedShort  int64 // если > 0, Matched уменьшается на это число

	bulkCalls [][]metadata.FieldUpdate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		units:  make(map[string]*model.Unit),
		groups: make(map[string]*model.ObjectGroup),
	}
}

func (f *fakeStore) InsertUnit(_ context.Context, unit *model.Unit) error {
	cp := *unit
	f.units[unit.ID] = &cp
	return nil
}

func (f *fakeStore) GetUnit(_ context.Context, id string) (*model.Unit, error) {
	u, ok := f.units[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SetUnitFields(_ context.Context, id string, fields map[string]any) error {
	if f.failSetUnitFields {
		return fmt.Errorf("инжектированная ошибка обновления единицы")
	}
	u, ok := f.units[id]
	if !ok {
		return metadata.ErrNotFound
	}
	applyUnitFields(u, fields)
	return nil
}

func (f *fakeStore) ListUnitSummaries(_ context.Context, transactionID string) ([]model.UnitSummary, error) {
	var out []model.UnitSummary
	for _, u := range f.units {
		if u.TransactionID != transactionID {
			continue
		}
		out = append(out, model.UnitSummary{
			ID:          u.ID,
			Title:       u.Title,
			ParentID:    u.ParentID,
			AncestorIDs: u.AncestorIDs,
		})
	}
	// Стабильный порядок для воспроизводимости тестов
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) EachUnitRefBatch(_ context.Context, transactionID string, batchSize int, fn func([]model.UnitRef) error) error {
	var refs []model.UnitRef
	for _, u := range f.units {
		if u.TransactionID == transactionID {
			refs = append(refs, model.UnitRef{ID: u.ID, ObjectGroupID: u.ObjectGroupID})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	for start := 0; start < len(refs); start += batchSize {
		end := start + batchSize
		if end > len(refs) {
			end = len(refs)
		}
		if err := fn(refs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) BulkSetUnitFields(_ context.Context, updates []metadata.FieldUpdate) (*metadata.BulkOutcome, error) {
	if f.failBulk {
		return nil, fmt.Errorf("инжектированная ошибка батчевого обновления")
	}
	// Копия: сервис переиспользует срез батча между вызовами
	cp := make([]metadata.FieldUpdate, len(updates))
	copy(cp, updates)
	f.bulkCalls = append(f.bulkCalls, cp)
	var matched int64
	for _, upd := range updates {
		u, ok := f.units[upd.ID]
		if !ok {
			continue
		}
		matched++
		applyUnitFields(u, upd.Fields)
	}
	matched -= f.bulkMatchedShort
	return &metadata.BulkOutcome{Matched: matched, Modified: matched}, nil
}

func (f *fakeStore) DeleteUnits(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.units, id)
	}
	return nil
}

func (f *fakeStore) InsertObjectGroup(_ context.Context, group *model.ObjectGroup) error {
	cp := *group
	f.groups[group.ID] = &cp
	return nil
}

func (f *fakeStore) GetObjectGroup(_ context.Context, id string) (*model.ObjectGroup, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) ReplaceQualifiers(_ context.Context, id string, qualifiers []model.Qualifier) error {
	g, ok := f.groups[id]
	if !ok {
		return metadata.ErrNotFound
	}
	g.Qualifiers = qualifiers
	return nil
}

func (f *fakeStore) DeleteObjectGroups(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.groups, id)
	}
	return nil
}

// applyUnitFields переносит известные поля обновления в модель.
func applyUnitFields(u *model.Unit, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "objectGroupId":
			if s, ok := v.(string); ok {
				u.ObjectGroupID = s
			}
		case "title":
			if s, ok := v.(string); ok {
				u.Title = s
			}
		}
	}
}

// seqIssuer — детерминированный выпуск идентификаторов для тестов.
type seqIssuer struct {
	n int
}

func (i *seqIssuer) NewID(kind identity.Kind) string {
	i.n++
	return fmt.Sprintf("%s-0-%04d", kind, i.n)
}
