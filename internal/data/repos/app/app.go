package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

type AppRepo interface {
	Create(dbc dbctx.Context, row *domain.App) (*domain.App, error)
	// GetByIDForUser returns (nil, nil) when absent or owned by another user.
	GetByIDForUser(dbc dbctx.Context, id uuid.UUID, userID string) (*domain.App, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*domain.App, error)
	DeleteForUser(dbc dbctx.Context, id uuid.UUID, userID string) error
}

type appRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAppRepo(db *gorm.DB, log *logger.Logger) AppRepo {
	return &appRepo{db: db, log: log.With("repo", "AppRepo")}
}

func (r *appRepo) Create(dbc dbctx.Context, row *domain.App) (*domain.App, error) {
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

func (r *appRepo) GetByIDForUser(dbc dbctx.Context, id uuid.UUID, userID string) (*domain.App, error) {
	if id == uuid.Nil || userID == "" {
		return nil, fmt.Errorf("missing app_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.App
	err := txx.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *appRepo) ListByUser(dbc dbctx.Context, userID string) ([]*domain.App, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.App
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.App{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *appRepo) DeleteForUser(dbc dbctx.Context, id uuid.UUID, userID string) error {
	if id == uuid.Nil || userID == "" {
		return fmt.Errorf("missing app_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.App{}).Error
}
