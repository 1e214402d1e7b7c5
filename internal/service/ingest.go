// ingest.go — приём ZIP-архива: построение дерева единиц,
// прикрепление бинарных объектов, пост-проход CSV-переопределения.
package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

const (
	// uploadKey — ключ исходного архива в контейнере транзакции
	uploadKey = "upload/transaction.zip"
	// metadataKey — ключ захваченного файла переопределения метаданных
	metadataKey = "metadata/metadata.csv"
	// metadataFilename — имя файла переопределения в корне архива
	metadataFilename = "metadata.csv"
	// attachmentUnitTitle — название синтетической единицы точки прикрепления
	attachmentUnitTitle = "attachment"
)

// Метрики приёма.
var (
	ingestArchivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_ingest_archives_total",
		Help: "Число принятых архивов по результату",
	}, []string{"result"})

	ingestUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_ingest_units_total",
		Help: "Число единиц, созданных при приёме архивов",
	})
)

// IngestResult — итог приёма архива.
type IngestResult struct {
	// Units — создано единиц (включая синтетическую единицу прикрепления)
	Units int `json:"units"`
	// Objects — прикреплено бинарных объектов
	Objects int `json:"objects"`
	// MetadataApplied — выполнен пост-проход CSV-переопределения
	MetadataApplied bool `json:"metadata_applied"`
}

// IngestService принимает ZIP-архивы в транзакции.
type IngestService struct {
	store        metadata.Store
	ws           *workspace.Store
	issuer       identity.Issuer
	objectGroups *ObjectGroupService
	paths        *PathService
	logger       *slog.Logger
}

// NewIngestService создаёт сервис приёма.
func NewIngestService(
	store metadata.Store,
	ws *workspace.Store,
	issuer identity.Issuer,
	objectGroups *ObjectGroupService,
	paths *PathService,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		store:        store,
		ws:           ws,
		issuer:       issuer,
		objectGroups: objectGroups,
		paths:        paths,
		logger:       logger.With(slog.String("component", "ingest_service")),
	}
}

// treeAccumulator — таблица путей одного вызова Ingest.
// Явный аккумулятор вместо разделяемого состояния: путь → созданная
// единица, чтобы дочерние записи находили родителя.
type treeAccumulator struct {
	// byPath — нормализованный путь записи → единица
	byPath map[string]*model.Unit
	// attachmentRoot — синтетическая единица прикрепления (может быть nil)
	attachmentRoot *model.Unit
}

func newTreeAccumulator() *treeAccumulator {
	return &treeAccumulator{byPath: make(map[string]*model.Unit)}
}

// parentOf возвращает родителя для записи с данным путём.
// Для верхнего уровня родитель — единица прикрепления (если есть);
// запись, чей родительский каталог ещё не встречался, остаётся корнем.
func (a *treeAccumulator) parentOf(entryPath string) *model.Unit {
	dir := path.Dir(entryPath)
	if dir == "." {
		return a.attachmentRoot
	}
	return a.byPath[dir]
}

// Ingest принимает архив в транзакцию.
//
// Архив сначала целиком записывается в контейнер транзакции (потоково),
// затем его записи обходятся ровно один раз. Файл metadata.csv в корне
// архива содержимым не считается: он захватывается для пост-прохода
// переопределения метаданных. Каталоги становятся единицами уровня
// RecordGrp, файлы — единицами уровня Item с бинарным объектом версии 1.
func (s *IngestService) Ingest(ctx context.Context, r io.Reader, tx *model.Transaction, project *model.Project) (*IngestResult, error) {
	result, err := s.ingest(ctx, r, tx, project)
	if err != nil {
		ingestArchivesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	ingestArchivesTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (s *IngestService) ingest(ctx context.Context, r io.Reader, tx *model.Transaction, project *model.Project) (*IngestResult, error) {
	if err := s.ws.EnsureContainer(tx.ID); err != nil {
		return nil, fmt.Errorf("подготовка контейнера транзакции %s: %w", tx.ID, err)
	}

	// Спул архива на диск: формат ZIP требует произвольного доступа
	// к центральному каталогу, входной поток его не даёт
	if _, err := s.ws.Put(tx.ID, uploadKey, r); err != nil {
		return nil, fmt.Errorf("сохранение архива транзакции %s: %w", tx.ID, err)
	}
	zipPath, err := s.ws.Path(tx.ID, uploadKey)
	if err != nil {
		return nil, err
	}
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("открытие архива транзакции %s: %w", tx.ID, err)
	}
	defer archive.Close()

	acc := newTreeAccumulator()
	result := &IngestResult{}

	// Синтетическая единица точки прикрепления создаётся до обхода
	if project.StaticAttachmentID != "" {
		root, err := s.createAttachmentRoot(ctx, tx, project)
		if err != nil {
			return nil, err
		}
		acc.attachmentRoot = root
		result.Units++
	}

	metadataCaptured := false
	for _, entry := range archive.File {
		name, ok := normalizeEntryName(entry.Name)
		if !ok {
			s.logger.Warn("запись архива пропущена",
				slog.String("entry", entry.Name),
			)
			continue
		}

		// metadata.csv в корне архива — не содержимое
		if name == metadataFilename && !entry.FileInfo().IsDir() {
			if err := s.captureMetadata(tx.ID, entry); err != nil {
				return nil, err
			}
			metadataCaptured = true
			continue
		}

		if entry.FileInfo().IsDir() {
			if _, err := s.createUnit(ctx, tx, acc, name, model.LevelRecordGroup); err != nil {
				return nil, err
			}
			result.Units++
			continue
		}

		unit, err := s.createUnit(ctx, tx, acc, name, model.LevelItem)
		if err != nil {
			return nil, err
		}
		result.Units++

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("открытие записи %s: %w", entry.Name, err)
		}
		_, err = s.objectGroups.AttachBinary(ctx, unit.ID, model.UsageBinaryMaster, 1, path.Base(name), rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("прикрепление объекта записи %s: %w", entry.Name, err)
		}
		result.Objects++
	}

	// Пустой архив: ни одной содержательной записи
	contentUnits := result.Units
	if acc.attachmentRoot != nil {
		contentUnits--
	}
	if contentUnits == 0 {
		// Единица прикрепления без содержимого не должна пережить отказ
		if acc.attachmentRoot != nil {
			if delErr := s.store.DeleteUnits(ctx, []string{acc.attachmentRoot.ID}); delErr != nil {
				s.logger.Error("не удалось удалить единицу прикрепления пустого архива",
					slog.String("transaction_id", tx.ID),
					slog.String("unit_id", acc.attachmentRoot.ID),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, &EmptyArchiveError{TransactionID: tx.ID}
	}
	ingestUnitsTotal.Add(float64(result.Units))

	// Пост-проход переопределения метаданных
	if metadataCaptured {
		if err := s.applyCapturedMetadata(ctx, tx, acc); err != nil {
			return nil, err
		}
		result.MetadataApplied = true
	}

	s.logger.Info("архив принят",
		slog.String("transaction_id", tx.ID),
		slog.Int("units", result.Units),
		slog.Int("objects", result.Objects),
		slog.Bool("metadata_applied", result.MetadataApplied),
	)
	return result, nil
}

// createAttachmentRoot создаёт синтетическую единицу прикрепления,
// связанную с внешней единицей платформы через управляющий блок.
func (s *IngestService) createAttachmentRoot(ctx context.Context, tx *model.Transaction, project *model.Project) (*model.Unit, error) {
	unit := &model.Unit{
		ID:               s.issuer.NewID(identity.KindUnit),
		TransactionID:    tx.ID,
		Title:            attachmentUnitTitle,
		DescriptionLevel: model.LevelSeries,
		Management:       &model.Management{AttachmentUnitID: project.StaticAttachmentID},
	}
	if err := s.store.InsertUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("создание единицы прикрепления: %w", err)
	}
	return unit, nil
}

// createUnit создаёт единицу для записи архива и регистрирует её
// в таблице путей.
func (s *IngestService) createUnit(ctx context.Context, tx *model.Transaction, acc *treeAccumulator, entryPath string, level model.DescriptionLevel) (*model.Unit, error) {
	unit := &model.Unit{
		ID:               s.issuer.NewID(identity.KindUnit),
		TransactionID:    tx.ID,
		Title:            path.Base(entryPath),
		DescriptionLevel: level,
	}
	if parent := acc.parentOf(entryPath); parent != nil {
		unit.ParentID = parent.ID
		unit.AncestorIDs = append(append([]string{}, parent.AncestorIDs...), parent.ID)
	}
	if err := s.store.InsertUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("создание единицы %s: %w", entryPath, err)
	}
	acc.byPath[entryPath] = unit
	return unit, nil
}

// captureMetadata переносит metadata.csv из архива в контейнер транзакции.
func (s *IngestService) captureMetadata(transactionID string, entry *zip.File) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("открытие metadata.csv: %w", err)
	}
	defer rc.Close()

	if _, err := s.ws.Put(transactionID, metadataKey, rc); err != nil {
		return fmt.Errorf("сохранение metadata.csv: %w", err)
	}
	return nil
}

// applyCapturedMetadata выполняет пост-проход CSV-переопределения
// по только что созданному дереву.
func (s *IngestService) applyCapturedMetadata(ctx context.Context, tx *model.Transaction, acc *treeAccumulator) error {
	resolved, err := s.paths.ResolvePaths(ctx, tx.ID)
	if err != nil {
		return err
	}

	prefix := ""
	if acc.attachmentRoot != nil {
		prefix = acc.attachmentRoot.Title
	}

	rc, err := s.ws.Get(tx.ID, metadataKey)
	if err != nil {
		return fmt.Errorf("чтение захваченного metadata.csv: %w", err)
	}
	defer rc.Close()

	if err := s.paths.ApplyCSV(ctx, rc, resolved, prefix); err != nil {
		return fmt.Errorf("применение metadata.csv: %w", err)
	}
	return nil
}

// normalizeEntryName приводит имя записи архива к чистому относительному
// пути с разделителем "/". Абсолютные имена и выход за пределы корня
// отклоняются.
func normalizeEntryName(name string) (string, bool) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || cleaned == "/" {
		return "", false
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
