package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormStore is a gorm-backed Store. The caller supplies the dialector
// (sqlite for a single process, postgres/mysql for a shared deployment).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&OperationRecord{}); err != nil {
		return nil, errors.Wrap(err, "auto-migrate operation record")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) MarkHedgeAsUnhedged(ctx context.Context, operationID int64) error {
	res := s.db.WithContext(ctx).
		Model(&OperationRecord{}).
		Where("id = ?", operationID).
		Update("unhedged", true)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "mark hedge %d as unhedged", operationID)
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("mark hedge as unhedged: no operation record %d", operationID)
	}
	return nil
}

func (s *GormStore) UpdateTerminal(ctx context.Context, rec OperationRecord) error {
	return errors.Wrap(
		s.db.WithContext(ctx).Save(&rec).Error,
		"update terminal operation record",
	)
}

func (s *GormStore) GetOperation(ctx context.Context, operationID int64) (OperationRecord, error) {
	var rec OperationRecord
	err := s.db.WithContext(ctx).First(&rec, operationID).Error
	if err != nil {
		return OperationRecord{}, errors.Wrapf(err, "get operation %d", operationID)
	}
	return rec, nil
}
