package implementation

import (
	"context"
	"errors"
	"strings"

	"grant-assistant-be/internal/model"
	"grant-assistant-be/internal/repository/contract"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormKVRepositoryImpl struct {
	db *gorm.DB
}

func NewGormKVRepository(db *gorm.DB) contract.KVRepository {
	return &GormKVRepositoryImpl{db: db}
}

func (r *GormKVRepositoryImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var m model.KVEntry
	if err := r.db.WithContext(ctx).Where("entry_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(m.Value), true, nil
}

func (r *GormKVRepositoryImpl) Set(ctx context.Context, key string, value []byte) error {
	m := model.KVEntry{
		Key:   key,
		Value: datatypes.JSON(value),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}

func (r *GormKVRepositoryImpl) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&model.KVEntry{}).Error
}

func (r *GormKVRepositoryImpl) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&model.KVEntry{}).
		Where("entry_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("entry_key ASC").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
