package memory

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

type ToolExecutionRepo interface {
	Create(dbc dbctx.Context, row *domain.ToolExecution) (*domain.ToolExecution, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.ToolExecution, error)
}

type toolExecutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewToolExecutionRepo(db *gorm.DB, log *logger.Logger) ToolExecutionRepo {
	return &toolExecutionRepo{db: db, log: log.With("repo", "ToolExecutionRepo")}
}

func (r *toolExecutionRepo) Create(dbc dbctx.Context, row *domain.ToolExecution) (*domain.ToolExecution, error) {
	if row == nil || row.UserID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if row.ToolName == "" {
		return nil, fmt.Errorf("missing tool_name")
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

func (r *toolExecutionRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.ToolExecution, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.ToolExecution
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.ToolExecution{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
