package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
)

func seedTree(store *fakeStore) {
	// tx-1: a (корень) → a/b → a/b/doc.txt, плюс корень other
	store.units["u-a"] = &model.Unit{ID: "u-a", TransactionID: "tx-1", Title: "a",
		DescriptionLevel: model.LevelRecordGroup}
	store.units["u-b"] = &model.Unit{ID: "u-b", TransactionID: "tx-1", Title: "b",
		DescriptionLevel: model.LevelRecordGroup, ParentID: "u-a", AncestorIDs: []string{"u-a"}}
	store.units["u-doc"] = &model.Unit{ID: "u-doc", TransactionID: "tx-1", Title: "doc.txt",
		DescriptionLevel: model.LevelItem, ParentID: "u-b", AncestorIDs: []string{"u-a", "u-b"}}
	store.units["u-other"] = &model.Unit{ID: "u-other", TransactionID: "tx-1", Title: "other",
		DescriptionLevel: model.LevelRecordGroup}
	// Единица чужой транзакции не должна попадать в выборку
	store.units["u-foreign"] = &model.Unit{ID: "u-foreign", TransactionID: "tx-2", Title: "foreign"}
}

// TestResolvePaths — восстановление путей от мелких к глубоким.
func TestResolvePaths(t *testing.T) {
	store := newFakeStore()
	seedTree(store)
	svc := NewPathService(store, 1000, testLogger())

	resolved, err := svc.ResolvePaths(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("ResolvePaths() ошибка: %v", err)
	}

	want := map[string]string{
		"a":          "u-a",
		"a/b":        "u-b",
		"a/b/doc.txt": "u-doc",
		"other":      "u-other",
	}
	if !reflect.DeepEqual(resolved.PathToID, want) {
		t.Errorf("PathToID = %v, ожидается %v", resolved.PathToID, want)
	}
	if got := resolved.IDToPath["u-doc"]; got != "a/b/doc.txt" {
		t.Errorf("IDToPath[u-doc] = %q, ожидается a/b/doc.txt", got)
	}
}

// TestResolvePaths_Idempotent — повторный вызов на неизменном наборе
// даёт идентичную карту.
func TestResolvePaths_Idempotent(t *testing.T) {
	store := newFakeStore()
	seedTree(store)
	svc := NewPathService(store, 1000, testLogger())
	ctx := context.Background()

	first, err := svc.ResolvePaths(ctx, "tx-1")
	if err != nil {
		t.Fatalf("первый вызов: %v", err)
	}
	second, err := svc.ResolvePaths(ctx, "tx-1")
	if err != nil {
		t.Fatalf("второй вызов: %v", err)
	}
	if !reflect.DeepEqual(first.PathToID, second.PathToID) {
		t.Error("повторный вызов дал другую карту путей")
	}
}

// TestResolvePaths_DuplicateTitles — совпадающие пути соседей
// не различаются: последняя запись побеждает.
func TestResolvePaths_DuplicateTitles(t *testing.T) {
	store := newFakeStore()
	store.units["u-1"] = &model.Unit{ID: "u-1", TransactionID: "tx-1", Title: "дубликат"}
	store.units["u-2"] = &model.Unit{ID: "u-2", TransactionID: "tx-1", Title: "дубликат"}
	svc := NewPathService(store, 1000, testLogger())

	resolved, err := svc.ResolvePaths(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("ResolvePaths() ошибка: %v", err)
	}
	// fakeStore отдаёт единицы в порядке id, последняя запись — u-2
	if got := resolved.PathToID["дубликат"]; got != "u-2" {
		t.Errorf("PathToID[дубликат] = %q, ожидается u-2", got)
	}
	if len(resolved.PathToID) != 1 {
		t.Errorf("в карте %d путей, ожидается 1", len(resolved.PathToID))
	}
}

// TestResolvePaths_EmptyTransaction — пустая транзакция даёт пустую карту.
func TestResolvePaths_EmptyTransaction(t *testing.T) {
	store := newFakeStore()
	svc := NewPathService(store, 1000, testLogger())

	resolved, err := svc.ResolvePaths(context.Background(), "tx-none")
	if err != nil {
		t.Fatalf("ResolvePaths() ошибка: %v", err)
	}
	if len(resolved.PathToID) != 0 {
		t.Errorf("карта не пуста: %v", resolved.PathToID)
	}
}

// TestApplyCSV — одна строка даёт ровно одно обновление нужной единицы.
func TestApplyCSV(t *testing.T) {
	store := newFakeStore()
	store.units["U1"] = &model.Unit{ID: "U1", TransactionID: "tx-1", Title: "a"}
	svc := NewPathService(store, 1000, testLogger())

	resolved := &ResolvedPaths{
		PathToID: map[string]string{"a": "U1"},
		IDToPath: map[string]string{"U1": "a"},
	}
	err := svc.ApplyCSV(context.Background(), strings.NewReader("path;Title\na;Новое название\n"), resolved, "")
	if err != nil {
		t.Fatalf("ApplyCSV() ошибка: %v", err)
	}

	if len(store.bulkCalls) != 1 || len(store.bulkCalls[0]) != 1 {
		t.Fatalf("вызовов батча = %d, ожидается ровно один с одной строкой", len(store.bulkCalls))
	}
	upd := store.bulkCalls[0][0]
	if upd.ID != "U1" {
		t.Errorf("обновлена единица %q, ожидается U1", upd.ID)
	}
	if got := upd.Fields["Title"]; got != "Новое название" {
		t.Errorf("Fields[Title] = %v, ожидается Новое название", got)
	}
}

// TestApplyCSV_AttachmentPrefix — путь строки дополняется префиксом
// синтетической единицы прикрепления.
func TestApplyCSV_AttachmentPrefix(t *testing.T) {
	store := newFakeStore()
	store.units["U1"] = &model.Unit{ID: "U1", TransactionID: "tx-1", Title: "a"}
	svc := NewPathService(store, 1000, testLogger())

	resolved := &ResolvedPaths{
		PathToID: map[string]string{"attachment/a": "U1"},
		IDToPath: map[string]string{"U1": "attachment/a"},
	}
	err := svc.ApplyCSV(context.Background(), strings.NewReader("path;Title\na;x\n"), resolved, "attachment")
	if err != nil {
		t.Fatalf("ApplyCSV() ошибка: %v", err)
	}
	if len(store.bulkCalls) != 1 {
		t.Fatalf("вызовов батча = %d, ожидается 1", len(store.bulkCalls))
	}
}

// TestApplyCSV_Batching — строки разбиваются на батчи фиксированного размера.
func TestApplyCSV_Batching(t *testing.T) {
	store := newFakeStore()
	resolved := &ResolvedPaths{PathToID: map[string]string{}, IDToPath: map[string]string{}}

	var sb strings.Builder
	sb.WriteString("path;Title\n")
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		store.units[id] = &model.Unit{ID: id, TransactionID: "tx-1", Title: id}
		resolved.PathToID[id] = id
		sb.WriteString(id + ";v\n")
	}

	svc := NewPathService(store, 2, testLogger())
	if err := svc.ApplyCSV(context.Background(), strings.NewReader(sb.String()), resolved, ""); err != nil {
		t.Fatalf("ApplyCSV() ошибка: %v", err)
	}
	if len(store.bulkCalls) != 3 {
		t.Fatalf("батчей = %d, ожидается 3 (2+2+1)", len(store.bulkCalls))
	}
	if len(store.bulkCalls[2]) != 1 {
		t.Errorf("последний батч содержит %d строк, ожидается 1", len(store.bulkCalls[2]))
	}
}

// TestApplyCSV_Errors — типизированные ошибки применения.
func TestApplyCSV_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("пустой поток", func(t *testing.T) {
		svc := NewPathService(newFakeStore(), 1000, testLogger())
		err := svc.ApplyCSV(ctx, strings.NewReader(""), &ResolvedPaths{}, "")
		var noUpdates *NoUpdatesAppliedError
		if !errors.As(err, &noUpdates) {
			t.Errorf("ожидается NoUpdatesAppliedError, получено %v", err)
		}
	})

	t.Run("только заголовок", func(t *testing.T) {
		svc := NewPathService(newFakeStore(), 1000, testLogger())
		err := svc.ApplyCSV(ctx, strings.NewReader("path;Title\n"), &ResolvedPaths{}, "")
		var noUpdates *NoUpdatesAppliedError
		if !errors.As(err, &noUpdates) {
			t.Errorf("ожидается NoUpdatesAppliedError, получено %v", err)
		}
	})

	t.Run("неизвестный путь", func(t *testing.T) {
		svc := NewPathService(newFakeStore(), 1000, testLogger())
		resolved := &ResolvedPaths{PathToID: map[string]string{}}
		err := svc.ApplyCSV(ctx, strings.NewReader("path;Title\nнет такого;v\n"), resolved, "")
		var unresolved *UnresolvedPathError
		if !errors.As(err, &unresolved) {
			t.Fatalf("ожидается UnresolvedPathError, получено %v", err)
		}
		if unresolved.Line != 2 {
			t.Errorf("Line = %d, ожидается 2", unresolved.Line)
		}
	})

	t.Run("неполный итог батча", func(t *testing.T) {
		store := newFakeStore()
		store.units["U1"] = &model.Unit{ID: "U1", TransactionID: "tx-1", Title: "a"}
		store.bulkMatchedShort = 1
		svc := NewPathService(store, 1000, testLogger())
		resolved := &ResolvedPaths{PathToID: map[string]string{"a": "U1"}}
		err := svc.ApplyCSV(ctx, strings.NewReader("path;Title\na;v\n"), resolved, "")
		var bulkErr *BulkUpdateError
		if !errors.As(err, &bulkErr) {
			t.Fatalf("ожидается BulkUpdateError, получено %v", err)
		}
	})
}
