package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/config"
	appRepo "github.com/forgechat/backend/internal/data/repos/app"
	chatRepo "github.com/forgechat/backend/internal/data/repos/chat"
	memoryRepo "github.com/forgechat/backend/internal/data/repos/memory"
	userRepo "github.com/forgechat/backend/internal/data/repos/user"
	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/apierr"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
)

// Embedder converts text to a fixed-dimension vector. openai.Client satisfies
// it; tests inject deterministic stubs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is an optional read-through cache in front of the Embedder.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vec []float32)
}

// PersonalizationService orchestrates the memory store and the embedding
// client. When the store is unavailable every operation degrades to an
// empty/nil result instead of failing: "memory subsystem disabled" is an
// expected operating mode, not an error.
type PersonalizationService interface {
	IsEnabled() bool

	EnsureUser(dbc dbctx.Context, userID string, email, name *string) (*domain.User, error)

	CreateApp(dbc dbctx.Context, userID, name string, cfg map[string]interface{}) (*domain.App, error)
	GetUserApps(dbc dbctx.Context, userID string) ([]*domain.App, error)
	DeleteApp(dbc dbctx.Context, userID string, appID uuid.UUID) error

	// StoreMemory embeds content and writes a memory row. It is a best-effort
	// side effect: failures are logged, never surfaced.
	StoreMemory(dbc dbctx.Context, userID, content string, appID *uuid.UUID, metadata map[string]interface{})
	SearchMemories(dbc dbctx.Context, userID, query string, appID *uuid.UUID, limit int) ([]memoryRepo.SimilarityHit, error)
	// RecordToolExecution writes the audit row, then best-effort derives one
	// memory from it. Neither failure blocks the caller's primary operation.
	RecordToolExecution(dbc dbctx.Context, userID, toolName string, args, result map[string]interface{}, success bool, appID *uuid.UUID)

	SetPersistentMemory(dbc dbctx.Context, userID, content string) error
	AppendPersistentMemory(dbc dbctx.Context, userID, content string) error
	GetPersistentMemory(dbc dbctx.Context, userID string) (string, error)

	// GetPersonalizedContext assembles the prompt-injectable block: persistent
	// memory first, then the top relevant retrieved memories. Empty string
	// when there is nothing to inject.
	GetPersonalizedContext(dbc dbctx.Context, userID, query string, appID *uuid.UUID) string

	CreateChatSession(dbc dbctx.Context, userID string, title *string) (*domain.ChatSession, error)
	GetChatSessions(dbc dbctx.Context, userID string) ([]*domain.ChatSession, error)
	GetChatSession(dbc dbctx.Context, userID string, sessionID uuid.UUID) (*domain.ChatSession, error)
	GetChatSessionWithMessages(dbc dbctx.Context, userID string, sessionID uuid.UUID) (*domain.ChatSession, []*domain.ChatMessage, error)
	UpdateChatSessionTitle(dbc dbctx.Context, userID string, sessionID uuid.UUID, title string) error
	DeleteChatSession(dbc dbctx.Context, userID string, sessionID uuid.UUID) error
	SaveChatMessage(dbc dbctx.Context, userID string, sessionID uuid.UUID, role, content string, messageIndex int64, metadata map[string]interface{}) (*domain.ChatMessage, error)
	GetChatMessages(dbc dbctx.Context, userID string, sessionID uuid.UUID) ([]*domain.ChatMessage, error)
	GenerateChatTitle(dbc dbctx.Context, userID string, sessionID uuid.UUID) (string, error)
}

type personalizationService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.Config

	users      userRepo.UserRepo
	apps       appRepo.AppRepo
	embeddings memoryRepo.EmbeddingRepo
	toolExecs  memoryRepo.ToolExecutionRepo
	persistent memoryRepo.PersistentRepo
	sessions   chatRepo.SessionRepo
	messages   chatRepo.MessageRepo

	embedder Embedder
	cache    EmbeddingCache
}

// NewPersonalizationService wires the service. A nil db disables the whole
// subsystem; a nil cache just skips embedding caching.
func NewPersonalizationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg *config.Config,
	users userRepo.UserRepo,
	apps appRepo.AppRepo,
	embeddings memoryRepo.EmbeddingRepo,
	toolExecs memoryRepo.ToolExecutionRepo,
	persistent memoryRepo.PersistentRepo,
	sessions chatRepo.SessionRepo,
	messages chatRepo.MessageRepo,
	embedder Embedder,
	cache EmbeddingCache,
) PersonalizationService {
	return &personalizationService{
		db:         db,
		log:        baseLog.With("service", "PersonalizationService"),
		cfg:        cfg,
		users:      users,
		apps:       apps,
		embeddings: embeddings,
		toolExecs:  toolExecs,
		persistent: persistent,
		sessions:   sessions,
		messages:   messages,
		embedder:   embedder,
		cache:      cache,
	}
}

func (s *personalizationService) IsEnabled() bool { return s.db != nil }

// isExternalID reports whether id follows the provider-subject convention of
// externally authenticated identities (e.g. "google-oauth2|107691...").
func isExternalID(id string) bool {
	return strings.Contains(id, "|")
}

func (s *personalizationService) embedText(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, apierr.Disabled("embeddings_not_configured")
	}
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, text); ok {
			return vec, nil
		}
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, text, vec)
	}
	return vec, nil
}

// ---------------------------------------------------------------- users

func (s *personalizationService) EnsureUser(dbc dbctx.Context, userID string, email, name *string) (*domain.User, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}

	existing, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if existing != nil {
		updates := map[string]interface{}{}
		if email != nil && *email != "" {
			updates["email"] = *email
			existing.Email = email
		}
		if name != nil && *name != "" {
			updates["name"] = *name
			existing.Name = name
		}
		if len(updates) > 0 {
			if err := s.users.UpdateFields(dbc, userID, updates); err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
			existing.UpdatedAt = time.Now().UTC()
		}
		return existing, nil
	}

	now := time.Now().UTC()
	created, err := s.users.Create(dbc, &domain.User{
		ID:              userID,
		Email:           email,
		Name:            name,
		IsAuthenticated: isExternalID(userID),
		Settings:        map[string]interface{}{},
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// ---------------------------------------------------------------- apps

func (s *personalizationService) CreateApp(dbc dbctx.Context, userID, name string, cfg map[string]interface{}) (*domain.App, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.Validation("missing_name", fmt.Errorf("name is required"))
	}
	if cfg == nil {
		cfg = map[string]interface{}{}
	}

	description := ""
	if d, ok := cfg["description"].(string); ok {
		description = d
	}

	now := time.Now().UTC()
	return s.apps.Create(dbc, &domain.App{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *personalizationService) GetUserApps(dbc dbctx.Context, userID string) ([]*domain.App, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	return s.apps.ListByUser(dbc, userID)
}

func (s *personalizationService) DeleteApp(dbc dbctx.Context, userID string, appID uuid.UUID) error {
	if !s.IsEnabled() {
		return nil
	}
	existing, err := s.apps.GetByIDForUser(dbc, appID, userID)
	if err != nil {
		return fmt.Errorf("lookup app: %w", err)
	}
	if existing == nil {
		return apierr.NotFound("app_not_found")
	}
	return s.apps.DeleteForUser(dbc, appID, userID)
}

// ---------------------------------------------------------------- memory

func (s *personalizationService) StoreMemory(dbc dbctx.Context, userID, content string, appID *uuid.UUID, metadata map[string]interface{}) {
	if !s.IsEnabled() {
		return
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(content) == "" {
		return
	}

	vec, err := s.embedText(dbc.Ctx, content)
	if err != nil {
		s.log.Warn("Skipping memory write, embedding failed", "user_id", userID, "error", err)
		return
	}

	_, err = s.embeddings.Create(dbc, &domain.MemoryEmbedding{
		ID:        uuid.New(),
		UserID:    userID,
		AppID:     appID,
		Content:   content,
		Embedding: pgvector.NewVector(vec),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("Memory write failed", "user_id", userID, "error", err)
	}
}

func (s *personalizationService) SearchMemories(dbc dbctx.Context, userID, query string, appID *uuid.UUID, limit int) ([]memoryRepo.SimilarityHit, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	if limit <= 0 {
		limit = s.cfg.DefaultSearchLimit
	}

	vec, err := s.embedText(dbc.Ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.embeddings.SimilaritySearch(dbc, memoryRepo.SimilarityQuery{
		UserID: userID,
		Vector: pgvector.NewVector(vec),
		AppID:  appID,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	// Sub-threshold matches are never surfaced to callers.
	filtered := hits[:0]
	for _, h := range hits {
		if h.Similarity > s.cfg.SimilarityThreshold {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

func (s *personalizationService) RecordToolExecution(dbc dbctx.Context, userID, toolName string, args, result map[string]interface{}, success bool, appID *uuid.UUID) {
	if !s.IsEnabled() {
		return
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(toolName) == "" {
		return
	}

	_, err := s.toolExecs.Create(dbc, &domain.ToolExecution{
		ID:        uuid.New(),
		UserID:    userID,
		AppID:     appID,
		ToolName:  toolName,
		Args:      args,
		Result:    result,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("Tool execution audit write failed", "user_id", userID, "tool", toolName, "error", err)
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	summary := fmt.Sprintf("Used tool %s with args %s (%s)", toolName, argsJSON, status)

	// Derived memory; the audit row above stays regardless of this outcome.
	s.StoreMemory(dbc, userID, summary, appID, map[string]interface{}{
		"type":      "tool_execution",
		"tool_name": toolName,
		"success":   success,
	})
}

// ------------------------------------------------------- persistent memory

func (s *personalizationService) SetPersistentMemory(dbc dbctx.Context, userID, content string) error {
	if !s.IsEnabled() {
		return nil
	}
	if strings.TrimSpace(userID) == "" {
		return apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}

	// Replace-wholesale inside one transaction: a failure partway must not
	// delete existing data without reinserting.
	base := dbc.Tx
	if base == nil {
		base = s.db
	}
	return base.Transaction(func(tx *gorm.DB) error {
		repoCtx := dbc.WithTx(tx)
		if err := s.persistent.DeleteByUser(repoCtx, userID); err != nil {
			return fmt.Errorf("delete persistent memory: %w", err)
		}
		now := time.Now().UTC()
		if _, err := s.persistent.Create(repoCtx, &domain.UserPersistentMemory{
			ID:        uuid.New(),
			UserID:    userID,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert persistent memory: %w", err)
		}
		return nil
	})
}

func (s *personalizationService) AppendPersistentMemory(dbc dbctx.Context, userID, content string) error {
	if !s.IsEnabled() {
		return nil
	}
	existing, err := s.GetPersistentMemory(dbc, userID)
	if err != nil {
		return err
	}
	if existing != "" {
		content = existing + "\n\n" + content
	}
	return s.SetPersistentMemory(dbc, userID, content)
}

func (s *personalizationService) GetPersistentMemory(dbc dbctx.Context, userID string) (string, error) {
	if !s.IsEnabled() {
		return "", nil
	}
	if strings.TrimSpace(userID) == "" {
		return "", apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	row, err := s.persistent.GetByUser(dbc, userID)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.Content, nil
}

// ----------------------------------------------------- personalized context

const (
	persistentContextHeading = "## Persistent User Context"
	retrievedContextHeading  = "## Relevant Past Interactions"
)

func (s *personalizationService) GetPersonalizedContext(dbc dbctx.Context, userID, query string, appID *uuid.UUID) string {
	if !s.IsEnabled() {
		return ""
	}

	persistent, err := s.GetPersistentMemory(dbc, userID)
	if err != nil {
		s.log.Warn("Persistent memory lookup failed, continuing without it", "user_id", userID, "error", err)
		persistent = ""
	}

	hits, err := s.SearchMemories(dbc, userID, query, appID, s.cfg.ContextMemoryLimit)
	if err != nil {
		s.log.Warn("Memory search failed, continuing without retrieved context", "user_id", userID, "error", err)
		hits = nil
	}
	if len(hits) > s.cfg.ContextMemoryLimit {
		hits = hits[:s.cfg.ContextMemoryLimit]
	}

	// Static user-declared context always precedes retrieved context.
	var b strings.Builder
	if strings.TrimSpace(persistent) != "" {
		b.WriteString(persistentContextHeading)
		b.WriteString("\n\n")
		b.WriteString(persistent)
		b.WriteString("\n")
	}
	if len(hits) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(retrievedContextHeading)
		b.WriteString("\n\n")
		for _, h := range hits {
			fmt.Fprintf(&b, "- %s (similarity: %.2f)\n", h.Content, h.Similarity)
		}
	}
	return b.String()
}

// ----------------------------------------------------------------- chat

func (s *personalizationService) CreateChatSession(dbc dbctx.Context, userID string, title *string) (*domain.ChatSession, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		title = nil
	}

	now := time.Now().UTC()
	return s.sessions.Create(dbc, &domain.ChatSession{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         title,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	})
}

func (s *personalizationService) GetChatSessions(dbc dbctx.Context, userID string) ([]*domain.ChatSession, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("missing_user_id", fmt.Errorf("userId is required"))
	}
	return s.sessions.ListByUser(dbc, userID, 0)
}

func (s *personalizationService) GetChatSession(dbc dbctx.Context, userID string, sessionID uuid.UUID) (*domain.ChatSession, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	return s.sessions.GetByIDForUser(dbc, sessionID, userID)
}

func (s *personalizationService) GetChatSessionWithMessages(dbc dbctx.Context, userID string, sessionID uuid.UUID) (*domain.ChatSession, []*domain.ChatMessage, error) {
	if !s.IsEnabled() {
		return nil, nil, nil
	}

	// Inside a caller transaction the reads stay sequential; a transaction
	// handle is not safe for concurrent use.
	if dbc.Tx != nil {
		session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
		if err != nil || session == nil {
			return nil, nil, err
		}
		msgs, err := s.messages.ListBySession(dbc, sessionID, 0)
		if err != nil {
			return nil, nil, err
		}
		return session, msgs, nil
	}

	var (
		session *domain.ChatSession
		msgs    []*domain.ChatMessage
	)
	g, ctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		var err error
		session, err = s.sessions.GetByIDForUser(dbctx.New(ctx), sessionID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		msgs, err = s.messages.ListBySession(dbctx.New(ctx), sessionID, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if session == nil {
		// Ownership failed closed; drop the messages we optimistically read.
		return nil, nil, nil
	}
	return session, msgs, nil
}

func (s *personalizationService) UpdateChatSessionTitle(dbc dbctx.Context, userID string, sessionID uuid.UUID, title string) error {
	if !s.IsEnabled() {
		return nil
	}
	session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return apierr.NotFound("session_not_found")
	}
	return s.sessions.UpdateTitle(dbc, sessionID, title)
}

func (s *personalizationService) DeleteChatSession(dbc dbctx.Context, userID string, sessionID uuid.UUID) error {
	if !s.IsEnabled() {
		return nil
	}
	session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return apierr.NotFound("session_not_found")
	}

	base := dbc.Tx
	if base == nil {
		base = s.db
	}
	return base.Transaction(func(tx *gorm.DB) error {
		repoCtx := dbc.WithTx(tx)
		if err := s.messages.DeleteBySession(repoCtx, sessionID); err != nil {
			return fmt.Errorf("delete session messages: %w", err)
		}
		if err := s.sessions.Delete(repoCtx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

func (s *personalizationService) SaveChatMessage(dbc dbctx.Context, userID string, sessionID uuid.UUID, role, content string, messageIndex int64, metadata map[string]interface{}) (*domain.ChatMessage, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if !domain.ValidRole(role) {
		return nil, apierr.Validation("invalid_role", fmt.Errorf("role must be user, assistant or system"))
	}

	session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apierr.NotFound("session_not_found")
	}

	now := time.Now().UTC()
	msg := &domain.ChatMessage{
		ID:           uuid.New(),
		SessionID:    sessionID,
		UserID:       userID,
		Role:         role,
		Content:      content,
		MessageIndex: messageIndex,
		Metadata:     metadata,
		CreatedAt:    now,
	}

	// The session bump is atomic with the insert: a reader never observes a
	// new message without last_message_at reflecting it.
	base := dbc.Tx
	if base == nil {
		base = s.db
	}
	if err := base.Transaction(func(tx *gorm.DB) error {
		repoCtx := dbc.WithTx(tx)
		if _, err := s.messages.Create(repoCtx, msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := s.sessions.TouchLastMessage(repoCtx, sessionID, now); err != nil {
			return fmt.Errorf("bump session: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// First user message in an untitled session derives the title, once.
	if role == domain.RoleUser && (session.Title == nil || strings.TrimSpace(*session.Title) == "") {
		if _, err := s.GenerateChatTitle(dbc, userID, sessionID); err != nil {
			s.log.Warn("Chat title generation failed", "session_id", sessionID, "error", err)
		}
	}

	return msg, nil
}

func (s *personalizationService) GetChatMessages(dbc dbctx.Context, userID string, sessionID uuid.UUID) ([]*domain.ChatMessage, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apierr.NotFound("session_not_found")
	}
	return s.messages.ListBySession(dbc, sessionID, 0)
}

func (s *personalizationService) GenerateChatTitle(dbc dbctx.Context, userID string, sessionID uuid.UUID) (string, error) {
	if !s.IsEnabled() {
		return "", nil
	}
	session, err := s.sessions.GetByIDForUser(dbc, sessionID, userID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", apierr.NotFound("session_not_found")
	}
	// Titles derive automatically at most once; renames are explicit.
	if session.Title != nil && strings.TrimSpace(*session.Title) != "" {
		return *session.Title, nil
	}

	first, err := s.messages.FirstUserMessage(dbc, sessionID)
	if err != nil {
		return "", err
	}
	if first == nil {
		return "", nil
	}

	title := deriveTitle(first.Content, s.cfg.TitleMaxLength)
	if title == "" {
		return "", nil
	}
	if err := s.sessions.UpdateTitle(dbc, sessionID, title); err != nil {
		return "", err
	}
	return title, nil
}

func deriveTitle(content string, maxLen int) string {
	title := strings.TrimSpace(content)
	if maxLen <= 0 {
		maxLen = 50
	}
	runes := []rune(title)
	if len(runes) > maxLen {
		title = strings.TrimSpace(string(runes[:maxLen])) + "..."
	}
	return title
}
