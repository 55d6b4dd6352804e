package memory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

// PersistentRepo holds at most one live row per user. Replacement is
// delete-then-insert; the service wraps both in one transaction so a partial
// failure cannot leave a user with no row where one existed.
type PersistentRepo interface {
	// GetByUser returns (nil, nil) when the user has no persistent memory.
	GetByUser(dbc dbctx.Context, userID string) (*domain.UserPersistentMemory, error)
	DeleteByUser(dbc dbctx.Context, userID string) error
	Create(dbc dbctx.Context, row *domain.UserPersistentMemory) (*domain.UserPersistentMemory, error)
}

type persistentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersistentRepo(db *gorm.DB, log *logger.Logger) PersistentRepo {
	return &persistentRepo{db: db, log: log.With("repo", "PersistentRepo")}
}

func (r *persistentRepo) GetByUser(dbc dbctx.Context, userID string) (*domain.UserPersistentMemory, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.UserPersistentMemory
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *persistentRepo) DeleteByUser(dbc dbctx.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&domain.UserPersistentMemory{}).Error
}

func (r *persistentRepo) Create(dbc dbctx.Context, row *domain.UserPersistentMemory) (*domain.UserPersistentMemory, error) {
	if row == nil || row.UserID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
