package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, id string) *domain.User {
	tb.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID:        id,
		Settings:  map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedApp(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, name string) *domain.App {
	tb.Helper()
	now := time.Now().UTC()
	a := &domain.App{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Config:    map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed app: %v", err)
	}
	return a
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, userID string) *domain.ChatSession {
	tb.Helper()
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:            uuid.New(),
		UserID:        userID,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed chat session: %v", err)
	}
	return s
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, userID, role, content string, index int64) *domain.ChatMessage {
	tb.Helper()
	m := &domain.ChatMessage{
		ID:           uuid.New(),
		SessionID:    sessionID,
		UserID:       userID,
		Role:         role,
		Content:      content,
		MessageIndex: index,
		CreatedAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed chat message: %v", err)
	}
	return m
}
