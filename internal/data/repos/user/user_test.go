package user

import (
	"context"
	"testing"
	"time"

	"github.com/forgechat/backend/internal/data/repos/testutil"
	"github.com/forgechat/backend/internal/domain"
	"github.com/forgechat/backend/internal/platform/dbctx"
)

func TestGetByIDMissingReturnsNil(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewUserRepo(gdb, log)

	got, err := repo.GetByID(dbc, "nobody")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing user, got %+v", got)
	}
}

func TestCreateAndUpdateFields(t *testing.T) {
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewUserRepo(gdb, log)

	now := time.Now().UTC()
	created, err := repo.Create(dbc, &domain.User{
		ID:        "u1",
		Settings:  map[string]interface{}{"theme": "dark"},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "u1" {
		t.Fatalf("unexpected created user: %+v", created)
	}

	if err := repo.UpdateFields(dbc, "u1", map[string]interface{}{"email": "a@b.c"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := repo.GetByID(dbc, "u1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Email == nil || *got.Email != "a@b.c" {
		t.Fatalf("email not updated: %+v", got.Email)
	}
	if got.Settings["theme"] != "dark" {
		t.Fatalf("settings lost on update: %+v", got.Settings)
	}
	if !got.UpdatedAt.After(now) && !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at not maintained: %v", got.UpdatedAt)
	}
}
