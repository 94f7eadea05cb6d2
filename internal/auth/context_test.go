package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:      "user-1",
		DisplayName: "Alice",
		Role:        RoleAdmin,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
	if got.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got.DisplayName)
	}
	if got.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, RoleAdmin)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "7"})
	if UserID(ctx) != "7" {
		t.Errorf("UserID = %q, want 7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != "" {
		t.Error("expected empty user id for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "admin"})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin role")
	}
}

func TestIsAdminFalse(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "member"})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for member role")
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
