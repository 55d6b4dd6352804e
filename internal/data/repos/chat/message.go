package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *domain.ChatMessage) (*domain.ChatMessage, error)
	// ListBySession returns messages in replay order: timestamp ascending,
	// with the caller-supplied message_index as the stable tiebreaker.
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
	// FirstUserMessage returns (nil, nil) when the session has no user message.
	FirstUserMessage(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatMessage, error)
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, row *domain.ChatMessage) (*domain.ChatMessage, error) {
	if row == nil || row.SessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if row.UserID == "" {
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

func (r *messageRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("message_index ASC")
	// limit <= 0 returns the full replay; truncating here would drop the
	// tail of long conversations.
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.ChatMessage
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) FirstUserMessage(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatMessage, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.ChatMessage
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND role = ?", sessionID, domain.RoleUser).
		Order("created_at ASC").
		Order("message_index ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *messageRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.ChatMessage{}).Error
}
