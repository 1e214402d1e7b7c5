// mongo.go — реализация Store поверх MongoDB (официальный драйвер v2).
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
)

// Имена коллекций.
const (
	unitsCollection        = "units"
	objectGroupsCollection = "objectgroups"
)

// MongoStore — хранилище метаданных в MongoDB.
type MongoStore struct {
	units        *mongo.Collection
	objectGroups *mongo.Collection
	logger       *slog.Logger
}

// Connect подключается к MongoDB и проверяет доступность через Ping.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*mongo.Client, *MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}

	logger.Info("Подключение к MongoDB установлено",
		slog.String("database", database),
	)

	return client, NewMongoStore(client, database, logger), nil
}

// NewMongoStore создаёт MongoStore поверх существующего клиента.
func NewMongoStore(client *mongo.Client, database string, logger *slog.Logger) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		units:        db.Collection(unitsCollection),
		objectGroups: db.Collection(objectGroupsCollection),
		logger:       logger.With(slog.String("component", "metadata_store")),
	}
}

// InsertUnit сохраняет новую единицу.
func (s *MongoStore) InsertUnit(ctx context.Context, unit *model.Unit) error {
	if _, err := s.units.InsertOne(ctx, unit); err != nil {
		return fmt.Errorf("ошибка вставки единицы %s: %w", unit.ID, err)
	}
	return nil
}

// GetUnit возвращает единицу по id.
func (s *MongoStore) GetUnit(ctx context.Context, id string) (*model.Unit, error) {
	var unit model.Unit
	err := s.units.FindOne(ctx, bson.M{"_id": id}).Decode(&unit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения единицы %s: %w", id, err)
	}
	return &unit, nil
}

// SetUnitFields устанавливает поля единицы одним $set по _id.
func (s *MongoStore) SetUnitFields(ctx context.Context, id string, fields map[string]any) error {
	res, err := s.units.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("ошибка обновления единицы %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnitSummaries возвращает проекции единиц транзакции.
// Выборка идёт курсором: длинные результаты пагинируются сервером.
func (s *MongoStore) ListUnitSummaries(ctx context.Context, transactionID string) ([]model.UnitSummary, error) {
	projection := bson.M{"_id": 1, "title": 1, "parentId": 1, "ancestorIds": 1}
	cur, err := s.units.Find(ctx, bson.M{"opi": transactionID}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки единиц транзакции %s: %w", transactionID, err)
	}
	defer cur.Close(ctx)

	var summaries []model.UnitSummary
	for cur.Next(ctx) {
		var sum model.UnitSummary
		if err := cur.Decode(&sum); err != nil {
			return nil, fmt.Errorf("ошибка декодирования единицы: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("ошибка курсора единиц: %w", err)
	}
	return summaries, nil
}

// EachUnitRefBatch обходит единицы транзакции батчами фиксированного размера.
func (s *MongoStore) EachUnitRefBatch(ctx context.Context, transactionID string, batchSize int, fn func([]model.UnitRef) error) error {
	projection := bson.M{"_id": 1, "objectGroupId": 1}
	cur, err := s.units.Find(ctx, bson.M{"opi": transactionID},
		options.Find().SetProjection(projection).SetBatchSize(int32(batchSize)))
	if err != nil {
		return fmt.Errorf("ошибка выборки единиц транзакции %s: %w", transactionID, err)
	}
	defer cur.Close(ctx)

	batch := make([]model.UnitRef, 0, batchSize)
	for cur.Next(ctx) {
		var ref model.UnitRef
		if err := cur.Decode(&ref); err != nil {
			return fmt.Errorf("ошибка декодирования единицы: %w", err)
		}
		batch = append(batch, ref)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("ошибка курсора единиц: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// BulkSetUnitFields выполняет батч независимых $set одним ordered bulk-запросом.
func (s *MongoStore) BulkSetUnitFields(ctx context.Context, updates []FieldUpdate) (*BulkOutcome, error) {
	if len(updates) == 0 {
		return &BulkOutcome{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": u.ID}).
			SetUpdate(bson.M{"$set": u.Fields}))
	}

	res, err := s.units.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return nil, fmt.Errorf("ошибка батчевого обновления единиц: %w", err)
	}
	return &BulkOutcome{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// DeleteUnits удаляет единицы по списку id.
func (s *MongoStore) DeleteUnits(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.units.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("ошибка удаления единиц: %w", err)
	}
	return nil
}

// InsertObjectGroup сохраняет новую группу объектов.
func (s *MongoStore) InsertObjectGroup(ctx context.Context, group *model.ObjectGroup) error {
	if _, err := s.objectGroups.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("ошибка вставки группы объектов %s: %w", group.ID, err)
	}
	return nil
}

// GetObjectGroup возвращает группу объектов по id.
func (s *MongoStore) GetObjectGroup(ctx context.Context, id string) (*model.ObjectGroup, error) {
	var group model.ObjectGroup
	err := s.objectGroups.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения группы объектов %s: %w", id, err)
	}
	return &group, nil
}

// ReplaceQualifiers заменяет поле qualifiers группы одним $set по _id.
// Атомарность этого обновления — единственная защита от гонки двух
// конкурентных прикреплений к одному квалификатору.
func (s *MongoStore) ReplaceQualifiers(ctx context.Context, id string, qualifiers []model.Qualifier) error {
	res, err := s.objectGroups.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"qualifiers": qualifiers}})
	if err != nil {
		return fmt.Errorf("ошибка обновления qualifiers %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteObjectGroups удаляет группы объектов по списку id.
func (s *MongoStore) DeleteObjectGroups(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.objectGroups.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("ошибка удаления групп объектов: %w", err)
	}
	return nil
}
