package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/config"
	appRepo "github.com/forgechat/backend/internal/data/repos/app"
	chatRepo "github.com/forgechat/backend/internal/data/repos/chat"
	memoryRepo "github.com/forgechat/backend/internal/data/repos/memory"
	"github.com/forgechat/backend/internal/data/repos/testutil"
	userRepo "github.com/forgechat/backend/internal/data/repos/user"
	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/apierr"
	"github.com/forgechat/backend/internal/platform/dbctx"
)

// stubEmbedder returns fixed vectors per input so similarity outcomes are
// deterministic. Unknown inputs get the unit vector on the first axis.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("embedder unavailable")
	}
	if v, ok := e.vectors[text]; ok {
		return padVector(v), nil
	}
	return padVector([]float32{1}), nil
}

func padVector(v []float32) []float32 {
	out := make([]float32, domain.EmbeddingDimensions)
	copy(out, v)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                8080,
		SimilarityThreshold: 0.7,
		DefaultSearchLimit:  5,
		ContextMemoryLimit:  3,
		TitleMaxLength:      50,
	}
}

func newTestService(t *testing.T, embedder Embedder) (PersonalizationService, dbctx.Context, *gorm.DB) {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	svc := NewPersonalizationService(
		db,
		log,
		testConfig(),
		userRepo.NewUserRepo(db, log),
		appRepo.NewAppRepo(db, log),
		memoryRepo.NewEmbeddingRepo(db, log),
		memoryRepo.NewToolExecutionRepo(db, log),
		memoryRepo.NewPersistentRepo(db, log),
		chatRepo.NewSessionRepo(db, log),
		chatRepo.NewMessageRepo(db, log),
		embedder,
		nil,
	)
	return svc, dbctx.Context{Ctx: context.Background(), Tx: tx}, tx
}

func strptr(s string) *string { return &s }

func TestEnsureUserCreateThenUpdate(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})

	u, err := svc.EnsureUser(dbc, "google-oauth2|1076", strptr("a@b.c"), nil)
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if u == nil || u.ID != "google-oauth2|1076" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.IsAuthenticated {
		t.Fatalf("expected provider-subject id to be marked authenticated")
	}

	u2, err := svc.EnsureUser(dbc, "google-oauth2|1076", strptr("new@b.c"), strptr("Ada"))
	if err != nil {
		t.Fatalf("EnsureUser second call: %v", err)
	}
	if u2.Email == nil || *u2.Email != "new@b.c" {
		t.Fatalf("expected updated email, got %+v", u2.Email)
	}
	if u2.Name == nil || *u2.Name != "Ada" {
		t.Fatalf("expected updated name, got %+v", u2.Name)
	}

	anon, err := svc.EnsureUser(dbc, "local-dev", nil, nil)
	if err != nil {
		t.Fatalf("EnsureUser anon: %v", err)
	}
	if anon.IsAuthenticated {
		t.Fatalf("expected plain id to be unauthenticated")
	}
}

func TestEnsureUserRequiresID(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})
	if _, err := svc.EnsureUser(dbc, "  ", nil, nil); apierr.StatusOf(err) != 400 {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPersistentMemoryReplaceSemantics(t *testing.T) {
	svc, dbc, tx := newTestService(t, &stubEmbedder{})
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	if err := svc.SetPersistentMemory(dbc, "u1", "prefers dark mode"); err != nil {
		t.Fatalf("SetPersistentMemory: %v", err)
	}
	got, err := svc.GetPersistentMemory(dbc, "u1")
	if err != nil {
		t.Fatalf("GetPersistentMemory: %v", err)
	}
	if got != "prefers dark mode" {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if err := svc.SetPersistentMemory(dbc, "u1", "prefers light mode"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	got, _ = svc.GetPersistentMemory(dbc, "u1")
	if got != "prefers light mode" {
		t.Fatalf("expected replacement, got %q", got)
	}

	var count int64
	if err := tx.Model(&domain.UserPersistentMemory{}).Where("user_id = ?", "u1").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one live row after replace, got %d", count)
	}
}

func TestAppendPersistentMemory(t *testing.T) {
	svc, dbc, tx := newTestService(t, &stubEmbedder{})
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	if err := svc.AppendPersistentMemory(dbc, "u1", "first"); err != nil {
		t.Fatalf("append to empty: %v", err)
	}
	got, _ := svc.GetPersistentMemory(dbc, "u1")
	if got != "first" {
		t.Fatalf("append to empty should not add a separator: %q", got)
	}

	if err := svc.AppendPersistentMemory(dbc, "u1", "second"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ = svc.GetPersistentMemory(dbc, "u1")
	if got != "first\n\nsecond" {
		t.Fatalf("expected blank-line separator, got %q", got)
	}
}

func TestSearchMemoriesThresholdAndRanking(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"likes TypeScript":          {1, 0},
		"indents with tabs":         {0.8, 0.6},
		"owns a cat":                {0, 1},
		"what language do I like?":  {1, 0},
	}}
	svc, dbc, tx := newTestService(t, emb)
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	svc.StoreMemory(dbc, "u1", "likes TypeScript", nil, nil)
	svc.StoreMemory(dbc, "u1", "indents with tabs", nil, nil)
	svc.StoreMemory(dbc, "u1", "owns a cat", nil, nil)

	hits, err := svc.SearchMemories(dbc, "u1", "what language do I like?", nil, 10)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits above threshold, got %d: %+v", len(hits), hits)
	}
	if hits[0].Content != "likes TypeScript" || hits[1].Content != "indents with tabs" {
		t.Fatalf("unexpected ranking: %q then %q", hits[0].Content, hits[1].Content)
	}
	for _, h := range hits {
		if h.Similarity <= 0.7 {
			t.Fatalf("surfaced sub-threshold hit: %+v", h)
		}
	}
}

func TestSearchMemoriesScopedByUser(t *testing.T) {
	svc, dbc, tx := newTestService(t, &stubEmbedder{})
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")
	testutil.SeedUser(t, dbc.Ctx, tx, "u2")

	svc.StoreMemory(dbc, "u2", "other user's secret", nil, nil)

	hits, err := svc.SearchMemories(dbc, "u1", "secret", nil, 10)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("search leaked rows across users: %+v", hits)
	}
}

func TestStoreMemorySwallowsEmbeddingFailure(t *testing.T) {
	emb := &stubEmbedder{fail: true}
	svc, dbc, tx := newTestService(t, emb)
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	svc.StoreMemory(dbc, "u1", "never stored", nil, nil)

	var count int64
	if err := tx.Model(&domain.MemoryEmbedding{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no memory rows after embedding failure, got %d", count)
	}
}

func TestRecordToolExecutionAuditSurvivesEmbeddingFailure(t *testing.T) {
	emb := &stubEmbedder{fail: true}
	svc, dbc, tx := newTestService(t, emb)
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	svc.RecordToolExecution(dbc, "u1", "web_search", map[string]interface{}{"q": "go"}, nil, true, nil)

	var audits int64
	if err := tx.Model(&domain.ToolExecution{}).Where("user_id = ?", "u1").Count(&audits).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 1 {
		t.Fatalf("expected the audit row to persist, got %d", audits)
	}
	var memories int64
	if err := tx.Model(&domain.MemoryEmbedding{}).Count(&memories).Error; err != nil {
		t.Fatalf("count memories: %v", err)
	}
	if memories != 0 {
		t.Fatalf("expected no derived memory, got %d", memories)
	}
}

func TestRecordToolExecutionDerivesMemory(t *testing.T) {
	svc, dbc, tx := newTestService(t, &stubEmbedder{})
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	svc.RecordToolExecution(dbc, "u1", "calculator", map[string]interface{}{"expr": "2+2"}, map[string]interface{}{"out": "4"}, true, nil)

	var rows []*domain.MemoryEmbedding
	if err := tx.Where("user_id = ?", "u1").Find(&rows).Error; err != nil {
		t.Fatalf("find memories: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one derived memory, got %d", len(rows))
	}
	if !strings.Contains(rows[0].Content, "Used tool calculator") || !strings.Contains(rows[0].Content, "(success)") {
		t.Fatalf("unexpected summary: %q", rows[0].Content)
	}
	if rows[0].Metadata["type"] != "tool_execution" {
		t.Fatalf("expected tool_execution metadata, got %+v", rows[0].Metadata)
	}
}

func TestGetPersonalizedContext(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"uses vim": {1, 0},
		"query":    {1, 0},
	}}
	svc, dbc, tx := newTestService(t, emb)
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	if got := svc.GetPersonalizedContext(dbc, "u1", "query", nil); got != "" {
		t.Fatalf("expected empty context for empty state, got %q", got)
	}

	if err := svc.SetPersistentMemory(dbc, "u1", "Always answer in French."); err != nil {
		t.Fatalf("SetPersistentMemory: %v", err)
	}
	svc.StoreMemory(dbc, "u1", "uses vim", nil, nil)

	got := svc.GetPersonalizedContext(dbc, "u1", "query", nil)
	if !strings.Contains(got, "## Persistent User Context") {
		t.Fatalf("missing persistent heading:\n%s", got)
	}
	if !strings.Contains(got, "Always answer in French.") {
		t.Fatalf("missing persistent content:\n%s", got)
	}
	if !strings.Contains(got, "## Relevant Past Interactions") {
		t.Fatalf("missing retrieved heading:\n%s", got)
	}
	if !strings.Contains(got, "- uses vim (similarity: 1.00)") {
		t.Fatalf("missing retrieved bullet:\n%s", got)
	}
	if idx := strings.Index(got, "## Persistent User Context"); idx != 0 {
		t.Fatalf("persistent section must come first:\n%s", got)
	}
}

func TestGetPersonalizedContextCapsRetrieved(t *testing.T) {
	svc, dbc, tx := newTestService(t, &stubEmbedder{})
	testutil.SeedUser(t, dbc.Ctx, tx, "u1")

	for i := 0; i < 6; i++ {
		svc.StoreMemory(dbc, "u1", fmt.Sprintf("fact %d", i), nil, nil)
	}

	got := svc.GetPersonalizedContext(dbc, "u1", "anything", nil)
	bullets := strings.Count(got, "\n- ") + btoi(strings.HasPrefix(got, "- "))
	if bullets > 3 {
		t.Fatalf("expected at most 3 retrieved bullets, got %d:\n%s", bullets, got)
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestChatSessionLifecycle(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})

	session, err := svc.CreateChatSession(dbc, "u1", nil)
	if err != nil {
		t.Fatalf("CreateChatSession: %v", err)
	}
	if session.Title != nil {
		t.Fatalf("expected untitled session, got %q", *session.Title)
	}

	long := strings.Repeat("x", 60)
	msg, err := svc.SaveChatMessage(dbc, "u1", session.ID, domain.RoleUser, long, 0, nil)
	if err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}

	reloaded, err := svc.GetChatSession(dbc, "u1", session.ID)
	if err != nil {
		t.Fatalf("GetChatSession: %v", err)
	}
	if reloaded.Title == nil {
		t.Fatalf("expected derived title")
	}
	want := strings.Repeat("x", 50) + "..."
	if *reloaded.Title != want {
		t.Fatalf("title = %q, want %q", *reloaded.Title, want)
	}
	if reloaded.LastMessageAt.Before(msg.CreatedAt) {
		t.Fatalf("last_message_at %v precedes message %v", reloaded.LastMessageAt, msg.CreatedAt)
	}

	// A later user message must not retitle the session.
	if _, err := svc.SaveChatMessage(dbc, "u1", session.ID, domain.RoleUser, "different text", 1, nil); err != nil {
		t.Fatalf("second SaveChatMessage: %v", err)
	}
	reloaded, _ = svc.GetChatSession(dbc, "u1", session.ID)
	if *reloaded.Title != want {
		t.Fatalf("title changed after first derivation: %q", *reloaded.Title)
	}

	msgs, err := svc.GetChatMessages(dbc, "u1", session.ID)
	if err != nil {
		t.Fatalf("GetChatMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].MessageIndex != 0 || msgs[1].MessageIndex != 1 {
		t.Fatalf("unexpected replay order: %+v", msgs)
	}

	got, gotMsgs, err := svc.GetChatSessionWithMessages(dbc, "u1", session.ID)
	if err != nil {
		t.Fatalf("GetChatSessionWithMessages: %v", err)
	}
	if got == nil || len(gotMsgs) != 2 {
		t.Fatalf("combined fetch mismatch: %+v / %d msgs", got, len(gotMsgs))
	}

	if err := svc.DeleteChatSession(dbc, "u1", session.ID); err != nil {
		t.Fatalf("DeleteChatSession: %v", err)
	}
	if s, _ := svc.GetChatSession(dbc, "u1", session.ID); s != nil {
		t.Fatalf("session survived delete")
	}
	if _, err := svc.GetChatMessages(dbc, "u1", session.ID); apierr.StatusOf(err) != 404 {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestAssistantMessageDoesNotTitle(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})

	session, err := svc.CreateChatSession(dbc, "u1", nil)
	if err != nil {
		t.Fatalf("CreateChatSession: %v", err)
	}
	if _, err := svc.SaveChatMessage(dbc, "u1", session.ID, domain.RoleAssistant, "hello there", 0, nil); err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}
	reloaded, _ := svc.GetChatSession(dbc, "u1", session.ID)
	if reloaded.Title != nil {
		t.Fatalf("assistant message must not derive a title, got %q", *reloaded.Title)
	}
}

func TestSaveChatMessageValidatesRole(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})
	session, _ := svc.CreateChatSession(dbc, "u1", nil)

	if _, err := svc.SaveChatMessage(dbc, "u1", session.ID, "robot", "hi", 0, nil); apierr.StatusOf(err) != 400 {
		t.Fatalf("expected validation error for bad role, got %v", err)
	}
}

func TestChatOwnershipFailsClosed(t *testing.T) {
	svc, dbc, _ := newTestService(t, &stubEmbedder{})
	session, _ := svc.CreateChatSession(dbc, "owner", nil)

	if s, err := svc.GetChatSession(dbc, "intruder", session.ID); err != nil || s != nil {
		t.Fatalf("expected (nil, nil) for foreign session, got %+v / %v", s, err)
	}
	if _, err := svc.SaveChatMessage(dbc, "intruder", session.ID, domain.RoleUser, "hi", 0, nil); apierr.StatusOf(err) != 404 {
		t.Fatalf("expected 404 for foreign write, got %v", err)
	}
	if err := svc.DeleteChatSession(dbc, "intruder", session.ID); apierr.StatusOf(err) != 404 {
		t.Fatalf("expected 404 for foreign delete, got %v", err)
	}
	if err := svc.UpdateChatSessionTitle(dbc, "intruder", session.ID, "mine now"); apierr.StatusOf(err) != 404 {
		t.Fatalf("expected 404 for foreign rename, got %v", err)
	}
}

func TestDisabledServiceDegrades(t *testing.T) {
	log := testutil.Logger(t)
	svc := NewPersonalizationService(nil, log, testConfig(), nil, nil, nil, nil, nil, nil, nil, &stubEmbedder{}, nil)
	dbc := dbctx.New(context.Background())

	if svc.IsEnabled() {
		t.Fatalf("service with no store must report disabled")
	}
	if u, err := svc.EnsureUser(dbc, "u1", nil, nil); u != nil || err != nil {
		t.Fatalf("EnsureUser on disabled service: %+v / %v", u, err)
	}
	if hits, err := svc.SearchMemories(dbc, "u1", "q", nil, 5); hits != nil || err != nil {
		t.Fatalf("SearchMemories on disabled service: %+v / %v", hits, err)
	}
	if got, err := svc.GetPersistentMemory(dbc, "u1"); got != "" || err != nil {
		t.Fatalf("GetPersistentMemory on disabled service: %q / %v", got, err)
	}
	if err := svc.SetPersistentMemory(dbc, "u1", "x"); err != nil {
		t.Fatalf("SetPersistentMemory on disabled service: %v", err)
	}
	if got := svc.GetPersonalizedContext(dbc, "u1", "q", nil); got != "" {
		t.Fatalf("GetPersonalizedContext on disabled service: %q", got)
	}
	svc.StoreMemory(dbc, "u1", "x", nil, nil)
	svc.RecordToolExecution(dbc, "u1", "t", nil, nil, true, nil)
}
