// objectgroups.go — прикрепление бинарных объектов к единицам:
// протокол версионирования, потоковая запись, определение формата.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/format"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

// ObjectGroupService прикрепляет бинарные объекты к единицам.
type ObjectGroupService struct {
	store      metadata.Store
	ws         *workspace.Store
	issuer     identity.Issuer
	identifier format.Identifier
	logger     *slog.Logger
}

// NewObjectGroupService создаёт сервис групп объектов.
func NewObjectGroupService(
	store metadata.Store,
	ws *workspace.Store,
	issuer identity.Issuer,
	identifier format.Identifier,
	logger *slog.Logger,
) *ObjectGroupService {
	return &ObjectGroupService{
		store:      store,
		ws:         ws,
		issuer:     issuer,
		identifier: identifier,
		logger:     logger.With(slog.String("component", "objectgroup_service")),
	}
}

// AttachBinary прикрепляет версию бинарного объекта к единице.
//
// Протокол версионирования: для новой группы или нового квалификатора
// допустима только версия 1; для существующего квалификатора — только
// последняя версия + 1. Занятый номер отклоняется как дубликат.
//
// Если у единицы ещё нет группы объектов, группа создаётся и связывается
// с единицей до записи данных; при неудаче связывания созданная группа
// удаляется (undo-create), чтобы не оставлять сироту.
func (s *ObjectGroupService) AttachBinary(
	ctx context.Context,
	unitID string,
	usage model.Usage,
	version int,
	filename string,
	r io.Reader,
) (*model.ObjectVersion, error) {
	if !model.ValidUsage(usage) {
		return nil, &InvalidUsageError{Usage: string(usage)}
	}
	if version < 1 {
		return nil, &InvalidVersionError{Usage: string(usage), Requested: version, Expected: 1}
	}

	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("чтение единицы %s: %w", unitID, err)
	}

	// Проверка протокола версионирования до любых побочных эффектов
	var group *model.ObjectGroup
	if unit.ObjectGroupID != "" {
		group, err = s.store.GetObjectGroup(ctx, unit.ObjectGroupID)
		if err != nil {
			return nil, fmt.Errorf("чтение группы объектов %s: %w", unit.ObjectGroupID, err)
		}
	}
	var qualifier *model.Qualifier
	expected := 1
	if group != nil {
		if qualifier = group.FindQualifier(usage); qualifier != nil {
			expected = qualifier.LastVersion() + 1
		}
	}
	if version != expected {
		if qualifier != nil && qualifier.HasVersion(version) {
			return nil, &DuplicateVersionError{Usage: string(usage), Version: version}
		}
		return nil, &InvalidVersionError{Usage: string(usage), Requested: version, Expected: expected}
	}

	if group == nil {
		group, err = s.createLinkedGroup(ctx, unit, filename)
		if err != nil {
			return nil, err
		}
	}

	// Потоковая запись в контейнер транзакции с подсчётом дайджеста
	versionID := s.issuer.NewID(identity.KindObjectVersion)
	key := path.Join(workspace.ContentFolder, versionID+filepath.Ext(filename))

	if err := s.ws.EnsureContainer(unit.TransactionID); err != nil {
		return nil, fmt.Errorf("подготовка контейнера транзакции %s: %w", unit.TransactionID, err)
	}
	put, err := s.ws.Put(unit.TransactionID, key, r)
	if err != nil {
		return nil, fmt.Errorf("запись объекта %s: %w", key, err)
	}

	objectVersion := model.ObjectVersion{
		ID:            versionID,
		TransactionID: unit.TransactionID,
		DataVersion:   fmt.Sprintf("%s_%d", usage, version),
		Number:        version,
		URI:           key,
		MessageDigest: put.Digest,
		Algorithm:     put.Algorithm,
		Size:          put.Size,
		FileInfo:      model.FileInfo{Filename: filename},
	}
	objectVersion.Format, err = s.identifyFormat(unit.TransactionID, key)
	if err != nil {
		return nil, err
	}

	// Единственная замена поля qualifiers одним атомарным обновлением
	qualifiers := appendVersion(group.Qualifiers, usage, objectVersion)
	if err := s.store.ReplaceQualifiers(ctx, group.ID, qualifiers); err != nil {
		return nil, fmt.Errorf("обновление квалификаторов группы %s: %w", group.ID, err)
	}

	s.logger.Info("бинарный объект прикреплён",
		slog.String("unit_id", unitID),
		slog.String("object_group_id", group.ID),
		slog.String("data_version", objectVersion.DataVersion),
		slog.Int64("size", put.Size),
	)
	return &objectVersion, nil
}

// OpenVersion открывает сохранённый бинарный объект для чтения.
// Вызывающий код обязан закрыть ReadCloser.
func (s *ObjectGroupService) OpenVersion(
	ctx context.Context,
	unitID string,
	usage model.Usage,
	version int,
) (io.ReadCloser, *model.ObjectVersion, error) {
	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, nil, fmt.Errorf("чтение единицы %s: %w", unitID, err)
	}
	if unit.ObjectGroupID == "" {
		return nil, nil, fmt.Errorf("у единицы %s нет группы объектов: %w", unitID, metadata.ErrNotFound)
	}

	group, err := s.store.GetObjectGroup(ctx, unit.ObjectGroupID)
	if err != nil {
		return nil, nil, fmt.Errorf("чтение группы объектов %s: %w", unit.ObjectGroupID, err)
	}

	qualifier := group.FindQualifier(usage)
	if qualifier == nil {
		return nil, nil, fmt.Errorf("квалификатор %s не найден: %w", usage, metadata.ErrNotFound)
	}
	for i := range qualifier.Versions {
		if qualifier.Versions[i].Number == version {
			rc, err := s.ws.Get(unit.TransactionID, qualifier.Versions[i].URI)
			if err != nil {
				return nil, nil, fmt.Errorf("открытие объекта %s: %w", qualifier.Versions[i].URI, err)
			}
			return rc, &qualifier.Versions[i], nil
		}
	}
	return nil, nil, fmt.Errorf("версия %d использования %s не найдена: %w", version, usage, metadata.ErrNotFound)
}

// createLinkedGroup создаёт группу объектов и связывает её с единицей.
func (s *ObjectGroupService) createLinkedGroup(ctx context.Context, unit *model.Unit, filename string) (*model.ObjectGroup, error) {
	group := &model.ObjectGroup{
		ID:            s.issuer.NewID(identity.KindObjectGroup),
		TransactionID: unit.TransactionID,
		FileInfo:      model.FileInfo{Filename: filename},
	}
	if err := s.store.InsertObjectGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("создание группы объектов: %w", err)
	}

	if err := s.store.SetUnitFields(ctx, unit.ID, map[string]any{"objectGroupId": group.ID}); err != nil {
		// Откат создания: группа без ссылки из единицы недостижима
		if delErr := s.store.DeleteObjectGroups(ctx, []string{group.ID}); delErr != nil {
			s.logger.Error("не удалось откатить создание группы объектов",
				slog.String("object_group_id", group.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("связывание группы %s с единицей %s: %w", group.ID, unit.ID, err)
	}

	unit.ObjectGroupID = group.ID
	return group, nil
}

// identifyFormat определяет формат записанного объекта по содержимому.
// Неудача идентификации не прерывает прикрепление (формат остаётся
// пустым), но недоступность только что записанного объекта — фатальна.
func (s *ObjectGroupService) identifyFormat(container, key string) (*model.FormatIdentification, error) {
	rc, err := s.ws.Get(container, key)
	if err != nil {
		return nil, fmt.Errorf("чтение объекта %s для определения формата: %w", key, err)
	}
	defer rc.Close()

	f, err := s.identifier.Identify(rc)
	if err != nil {
		s.logger.Warn("формат объекта не определён",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return f, nil
}

// appendVersion добавляет версию в квалификатор, создавая квалификатор
// при необходимости. Возвращает обновлённый срез.
func appendVersion(qualifiers []model.Qualifier, usage model.Usage, v model.ObjectVersion) []model.Qualifier {
	for i := range qualifiers {
		if qualifiers[i].Usage == usage {
			qualifiers[i].Versions = append(qualifiers[i].Versions, v)
			return qualifiers
		}
	}
	return append(qualifiers, model.Qualifier{Usage: usage, Versions: []model.ObjectVersion{v}})
}
