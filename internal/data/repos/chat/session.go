package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, row *domain.ChatSession) (*domain.ChatSession, error)
	// GetByIDForUser scopes by both id and owner and returns (nil, nil) when
	// the session is absent or belongs to a different user. Callers cannot
	// distinguish the two cases.
	GetByIDForUser(dbc dbctx.Context, id uuid.UUID, userID string) (*domain.ChatSession, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.ChatSession, error)
	UpdateTitle(dbc dbctx.Context, id uuid.UUID, title string) error
	// TouchLastMessage bumps last_message_at and updated_at to at.
	TouchLastMessage(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, row *domain.ChatSession) (*domain.ChatSession, error) {
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

func (r *sessionRepo) GetByIDForUser(dbc dbctx.Context, id uuid.UUID, userID string) (*domain.ChatSession, error) {
	if id == uuid.Nil || userID == "" {
		return nil, fmt.Errorf("missing session_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.ChatSession
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

func (r *sessionRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.ChatSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&domain.ChatSession{}).
		Where("user_id = ?", userID).
		Order("last_message_at DESC")
	// limit <= 0 means the whole listing; callers page explicitly.
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.ChatSession
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) UpdateTitle(dbc dbctx.Context, id uuid.UUID, title string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *sessionRepo) TouchLastMessage(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_at": at,
			"updated_at":      at,
		}).Error
}

func (r *sessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.ChatSession{}).Error
}
