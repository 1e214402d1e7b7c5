package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

// fakeProjectRepo — реестр проектов в памяти.
type fakeProjectRepo struct {
	projects map[string]*model.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[string]*model.Project)}
}

func (f *fakeProjectRepo) Create(_ context.Context, p *model.Project) error {
	if _, ok := f.projects[p.ID]; ok {
		return repository.ErrConflict
	}
	cp := *p
	f.projects[p.ID] = &cp
	return nil
}

func (f *fakeProjectRepo) GetByID(_ context.Context, id string) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjectRepo) List(_ context.Context, tenant int) ([]*model.Project, error) {
	var out []*model.Project
	for _, p := range f.projects {
		if p.Tenant == tenant {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProjectRepo) Update(_ context.Context, p *model.Project) error {
	if _, ok := f.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *p
	f.projects[p.ID] = &cp
	return nil
}

func (f *fakeProjectRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

type txFixture struct {
	txRepo   *fakeTxRepo
	projects *fakeProjectRepo
	store    *fakeStore
	ws       *workspace.Store
	svc      *TransactionService
}

func newTxFixture(t *testing.T) *txFixture {
	t.Helper()
	txRepo := newFakeTxRepo()
	projects := newFakeProjectRepo()
	projects.projects["pr-1"] = &model.Project{ID: "pr-1", Name: "проект", Tenant: 0}
	store := newFakeStore()
	ws := testWorkspace(t)
	return &txFixture{
		txRepo:   txRepo,
		projects: projects,
		store:    store,
		ws:       ws,
		svc:      NewTransactionService(txRepo, projects, store, ws, &seqIssuer{}, 2, testLogger()),
	}
}

// TestCreate — транзакция создаётся в OPEN, проект обязан существовать.
func TestCreate(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "первая партия")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if tx.Status != status.StatusOpen {
		t.Errorf("статус = %s, ожидается OPEN", tx.Status)
	}
	if tx.ProjectID != "pr-1" {
		t.Errorf("проект = %s, ожидается pr-1", tx.ProjectID)
	}

	_, err = fx.svc.Create(ctx, "pr-нет", "без проекта")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидается ErrNotFound для несуществующего проекта, получено %v", err)
	}
}

// TestChangeStatus_HappyPath — READY → SENDING → SENT по порядку.
func TestChangeStatus_HappyPath(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "партия")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	// Непустой контейнер
	if err := fx.ws.EnsureContainer(tx.ID); err != nil {
		t.Fatalf("EnsureContainer() ошибка: %v", err)
	}

	for _, target := range []status.Status{status.StatusReady, status.StatusSending, status.StatusSent} {
		if _, err := fx.svc.ChangeStatus(ctx, tx.ID, target); err != nil {
			t.Fatalf("переход в %s: %v", target, err)
		}
	}
	if got := fx.txRepo.txs[tx.ID].Status; got != status.StatusSent {
		t.Errorf("статус = %s, ожидается SENT", got)
	}
}

// TestChangeStatus_Illegal — недопустимый переход не меняет статус.
func TestChangeStatus_Illegal(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "партия")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	_, err = fx.svc.ChangeStatus(ctx, tx.ID, status.StatusSent)
	var illegal *status.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("ожидается IllegalTransitionError, получено %v", err)
	}
	if got := fx.txRepo.txs[tx.ID].Status; got != status.StatusOpen {
		t.Errorf("статус = %s, ожидается неизменный OPEN", got)
	}
}

// TestChangeStatus_EmptyTransaction — транзакция без контейнера не может
// стать READY.
func TestChangeStatus_EmptyTransaction(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "пустая")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	_, err = fx.svc.ChangeStatus(ctx, tx.ID, status.StatusReady)
	var empty *EmptyTransactionError
	if !errors.As(err, &empty) {
		t.Fatalf("ожидается EmptyTransactionError, получено %v", err)
	}
}

// TestAttachOperation — привязка идентификатора операции платформы.
func TestAttachOperation(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "партия")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	if err := fx.svc.AttachOperation(ctx, tx.ID, "op-42"); err != nil {
		t.Fatalf("AttachOperation() ошибка: %v", err)
	}
	if got := fx.txRepo.txs[tx.ID].OperationID; got != "op-42" {
		t.Errorf("OperationID = %q, ожидается op-42", got)
	}

	if err := fx.svc.AttachOperation(ctx, tx.ID, ""); err == nil {
		t.Error("ожидается ошибка для пустого идентификатора операции")
	}
}

// TestDelete — удаление транзакции очищает контейнер, метаданные батчами
// и запись реестра.
func TestDelete(t *testing.T) {
	fx := newTxFixture(t)
	ctx := context.Background()

	tx, err := fx.svc.Create(ctx, "pr-1", "на удаление")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := fx.ws.EnsureContainer(tx.ID); err != nil {
		t.Fatalf("EnsureContainer() ошибка: %v", err)
	}

	// Три единицы (больше одного батча при batchSize=2), одна с группой
	fx.store.units["au-1"] = &model.Unit{ID: "au-1", TransactionID: tx.ID, Title: "a", ObjectGroupID: "got-1"}
	fx.store.units["au-2"] = &model.Unit{ID: "au-2", TransactionID: tx.ID, Title: "b"}
	fx.store.units["au-3"] = &model.Unit{ID: "au-3", TransactionID: tx.ID, Title: "c"}
	fx.store.groups["got-1"] = &model.ObjectGroup{ID: "got-1", TransactionID: tx.ID}

	if err := fx.svc.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	if fx.ws.ContainerExists(tx.ID) {
		t.Error("контейнер транзакции не удалён")
	}
	if len(fx.store.units) != 0 || len(fx.store.groups) != 0 {
		t.Errorf("остались метаданные: %d единиц, %d групп", len(fx.store.units), len(fx.store.groups))
	}
	if _, ok := fx.txRepo.txs[tx.ID]; ok {
		t.Error("запись транзакции не удалена")
	}

	// Пути транзакции после удаления не разрешаются
	paths := NewPathService(fx.store, 1000, testLogger())
	resolved, err := paths.ResolvePaths(ctx, tx.ID)
	if err != nil {
		t.Fatalf("ResolvePaths() ошибка: %v", err)
	}
	if len(resolved.PathToID) != 0 {
		t.Errorf("карта путей не пуста: %v", resolved.PathToID)
	}
}

// TestDelete_NotFound — удаление несуществующей транзакции.
func TestDelete_NotFound(t *testing.T) {
	fx := newTxFixture(t)
	err := fx.svc.Delete(context.Background(), "tx-нет")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидается ErrNotFound, получено %v", err)
	}
}

// TestProjectService_CRUD — жизненный цикл проекта.
func TestProjectService_CRUD(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := NewProjectService(repo, &seqIssuer{}, 0, testLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, "новый проект", "ext-1", "")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if p.StaticAttachmentID != "ext-1" {
		t.Errorf("StaticAttachmentID = %q, ожидается ext-1", p.StaticAttachmentID)
	}

	if _, err := svc.Create(ctx, "", "", ""); err == nil {
		t.Error("ожидается ошибка для пустого имени")
	}

	updated, err := svc.Update(ctx, p.ID, "переименован", "", "ключ")
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if updated.Name != "переименован" || updated.DynamicAttachmentKey != "ключ" {
		t.Errorf("обновление не применилось: %+v", updated)
	}
	if !updated.UpdatedAt.After(p.CreatedAt.Add(-time.Second)) {
		t.Error("UpdatedAt не обновлён")
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v, ожидается один проект", list, err)
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидается ErrNotFound после удаления, получено %v", err)
	}
}
