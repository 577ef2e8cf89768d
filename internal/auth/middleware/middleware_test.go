package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/mindengage-passcut/internal/auth/middleware"
	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/exam/examtest"
	"github.com/mind-engage/mindengage-passcut/internal/rbac"
)

func login(t *testing.T, h http.Handler, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"username":"` + user + `","password":"` + pass + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rr
}

func TestLoginAndMiddleware(t *testing.T) {
	f := examtest.New(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err := f.Store.PutUser(context.Background(), exam.User{ID: "op-1", Username: "ops", Role: "operator", PasswordHash: string(hash)}); err != nil {
		t.Fatal(err)
	}
	a := auth.NewAuthService("test-secret")
	lh := auth.LoginHandler(a, f.Store)

	if rr := login(t, lh, "ops", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rr.Code)
	}
	if rr := login(t, lh, "nobody", "s3cret"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: %d", rr.Code)
	}
	// the seeded admin has no password and cannot log in
	if rr := login(t, lh, "admin", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("passwordless admin: %d", rr.Code)
	}
	rr := login(t, lh, "ops", "s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body)
	}
	var out struct {
		Token string `json:"access_token"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&out)

	var sub, role string
	h := auth.JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, role = auth.SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if sub != "op-1" || role != "operator" {
		t.Fatalf("context: sub=%q role=%q", sub, role)
	}

	forged, _ := auth.NewAuthService("other").IssueJWT("op-1", "admin")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: %d", rec.Code)
	}
}

func TestAttachRoleFromDB(t *testing.T) {
	f := examtest.New(t)
	var role string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { role = rbac.RoleFromContext(r.Context()) })

	serve := func(fallback bool, sub, claim string) int {
		ctx := rbac.WithRole(auth.WithSubject(context.Background(), sub), claim)
		rr := httptest.NewRecorder()
		auth.AttachRoleFromDB(f.Store.DB(), fallback)(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		return rr.Code
	}
	if code := serve(false, "admin-1", "operator"); code != http.StatusOK || role != exam.RoleAdmin {
		t.Fatalf("stored role: %d %q", code, role)
	}
	if code := serve(false, "ghost", "admin"); code != http.StatusForbidden {
		t.Fatalf("unknown subject: %d", code)
	}
	role = ""
	if code := serve(true, "ghost", "operator"); code != http.StatusOK || role != "operator" {
		t.Fatalf("fallback: %d %q", code, role)
	}
}

func TestRequireSubject(t *testing.T) {
	if _, err := auth.RequireSubject(context.Background()); !errors.Is(err, auth.ErrNoSubject) {
		t.Fatalf("empty context: %v", err)
	}
	if _, err := auth.RequireSubject(auth.WithSubject(context.Background(), "")); !errors.Is(err, auth.ErrNoSubject) {
		t.Fatalf("blank subject: %v", err)
	}
	// a plain string key must not collide with the subject
	ctx := context.WithValue(context.Background(), "sub", "mallory")
	if got := auth.SubjectFromContext(ctx); got != "" {
		t.Fatalf("string key leaked: %q", got)
	}
	if got, err := auth.RequireSubject(auth.WithSubject(ctx, "user-7")); err != nil || got != "user-7" {
		t.Fatalf("subject: %q %v", got, err)
	}
}
