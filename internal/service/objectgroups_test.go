package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/format"
)

func newObjectGroupService(t *testing.T, store *fakeStore) *ObjectGroupService {
	t.Helper()
	return NewObjectGroupService(store, testWorkspace(t), &seqIssuer{}, format.NewIdentifier(), testLogger())
}

func seedUnit(store *fakeStore, id, transactionID string) {
	store.units[id] = &model.Unit{
		ID:               id,
		TransactionID:    transactionID,
		Title:            "документ.pdf",
		DescriptionLevel: model.LevelItem,
	}
}

// TestAttachBinary_FirstVersion — первое прикрепление создаёт группу,
// связывает её с единицей и записывает версию 1.
func TestAttachBinary_FirstVersion(t *testing.T) {
	store := newFakeStore()
	seedUnit(store, "au-1", "tx-1")
	svc := newObjectGroupService(t, store)

	v, err := svc.AttachBinary(context.Background(), "au-1", model.UsageBinaryMaster, 1, "документ.pdf",
		strings.NewReader("%PDF-1.7 содержимое"))
	if err != nil {
		t.Fatalf("AttachBinary() ошибка: %v", err)
	}

	if v.Number != 1 || v.DataVersion != "BinaryMaster_1" {
		t.Errorf("версия = %d / %q, ожидается 1 / BinaryMaster_1", v.Number, v.DataVersion)
	}
	if v.Algorithm != "SHA-512" || v.MessageDigest == "" {
		t.Errorf("дайджест не заполнен: %+v", v)
	}
	if v.Format == nil || v.Format.MimeType != "application/pdf" {
		t.Errorf("формат = %+v, ожидается application/pdf", v.Format)
	}
	if !strings.HasPrefix(v.URI, "Content/") {
		t.Errorf("URI = %q, ожидается префикс Content/", v.URI)
	}

	unit := store.units["au-1"]
	if unit.ObjectGroupID == "" {
		t.Fatal("единица не связана с группой объектов")
	}
	group := store.groups[unit.ObjectGroupID]
	if group == nil {
		t.Fatal("группа объектов не сохранена")
	}
	q := group.FindQualifier(model.UsageBinaryMaster)
	if q == nil || len(q.Versions) != 1 {
		t.Fatalf("квалификатор не заполнен: %+v", group.Qualifiers)
	}
}

// TestAttachBinary_VersionProtocol — протокол версионирования.
func TestAttachBinary_VersionProtocol(t *testing.T) {
	store := newFakeStore()
	seedUnit(store, "au-1", "tx-1")
	svc := newObjectGroupService(t, store)
	ctx := context.Background()

	// Новая группа: версия 2 недопустима
	_, err := svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 2, "a.bin", strings.NewReader("x"))
	var invalid *InvalidVersionError
	if !errors.As(err, &invalid) {
		t.Fatalf("ожидается InvalidVersionError, получено %v", err)
	}
	if invalid.Expected != 1 {
		t.Errorf("Expected = %d, ожидается 1", invalid.Expected)
	}

	// Версии 1 и 2 по порядку
	if _, err := svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 1, "a.bin", strings.NewReader("x")); err != nil {
		t.Fatalf("версия 1: %v", err)
	}
	if _, err := svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 2, "b.bin", strings.NewReader("y")); err != nil {
		t.Fatalf("версия 2: %v", err)
	}

	// Повтор версии 1 — дубликат
	_, err = svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 1, "c.bin", strings.NewReader("z"))
	var dup *DuplicateVersionError
	if !errors.As(err, &dup) {
		t.Fatalf("ожидается DuplicateVersionError, получено %v", err)
	}

	// Пропуск версии 4 — нарушение протокола
	_, err = svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 4, "d.bin", strings.NewReader("w"))
	if !errors.As(err, &invalid) {
		t.Fatalf("ожидается InvalidVersionError, получено %v", err)
	}

	// Новый квалификатор у существующей группы: только версия 1
	_, err = svc.AttachBinary(ctx, "au-1", model.UsageThumbnail, 3, "t.png", strings.NewReader("p"))
	if !errors.As(err, &invalid) {
		t.Fatalf("ожидается InvalidVersionError для нового квалификатора, получено %v", err)
	}
	if _, err := svc.AttachBinary(ctx, "au-1", model.UsageThumbnail, 1, "t.png", strings.NewReader("p")); err != nil {
		t.Fatalf("первая версия нового квалификатора: %v", err)
	}
}

// TestAttachBinary_InvalidUsage — неизвестное использование отклоняется.
func TestAttachBinary_InvalidUsage(t *testing.T) {
	store := newFakeStore()
	seedUnit(store, "au-1", "tx-1")
	svc := newObjectGroupService(t, store)

	_, err := svc.AttachBinary(context.Background(), "au-1", "Оригинал", 1, "a.bin", strings.NewReader("x"))
	var usageErr *InvalidUsageError
	if !errors.As(err, &usageErr) {
		t.Fatalf("ожидается InvalidUsageError, получено %v", err)
	}
}

// TestAttachBinary_LinkRollback — при неудаче связывания созданная
// группа откатывается.
func TestAttachBinary_LinkRollback(t *testing.T) {
	store := newFakeStore()
	seedUnit(store, "au-1", "tx-1")
	store.failSetUnitFields = true
	svc := newObjectGroupService(t, store)

	_, err := svc.AttachBinary(context.Background(), "au-1", model.UsageBinaryMaster, 1, "a.bin", strings.NewReader("x"))
	if err == nil {
		t.Fatal("ожидается ошибка связывания")
	}
	if len(store.groups) != 0 {
		t.Errorf("осталось %d групп-сирот, ожидается 0", len(store.groups))
	}
}

// TestOpenVersion — скачивание сохранённой версии и отсутствующие пары.
func TestOpenVersion(t *testing.T) {
	store := newFakeStore()
	seedUnit(store, "au-1", "tx-1")
	svc := newObjectGroupService(t, store)
	ctx := context.Background()

	const content = "содержимое объекта"
	if _, err := svc.AttachBinary(ctx, "au-1", model.UsageBinaryMaster, 1, "a.txt", strings.NewReader(content)); err != nil {
		t.Fatalf("AttachBinary() ошибка: %v", err)
	}

	rc, v, err := svc.OpenVersion(ctx, "au-1", model.UsageBinaryMaster, 1)
	if err != nil {
		t.Fatalf("OpenVersion() ошибка: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("чтение объекта: %v", err)
	}
	if string(data) != content {
		t.Errorf("содержимое = %q, ожидается %q", data, content)
	}
	if v.FileInfo.Filename != "a.txt" {
		t.Errorf("Filename = %q, ожидается a.txt", v.FileInfo.Filename)
	}

	// Несуществующая версия
	if _, _, err := svc.OpenVersion(ctx, "au-1", model.UsageBinaryMaster, 2); err == nil {
		t.Error("ожидается ошибка для несуществующей версии")
	}
	// Несуществующий квалификатор
	if _, _, err := svc.OpenVersion(ctx, "au-1", model.UsageDissemination, 1); err == nil {
		t.Error("ожидается ошибка для несуществующего квалификатора")
	}
}
