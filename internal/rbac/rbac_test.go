package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"admin", PermAnswerKeyCommit, true},
		{"operator", PermAnswerKeyPreview, true},
		{"operator", PermAnswerKeyCommit, false},
		{"operator", PermReleaseRun, false},
		{"examinee", PermRankingView, false},
		{"", PermSubmissionScore, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v", tc.role, tc.perm, got)
		}
	}
	wild := NewChecker(map[string][]string{"ops": {"answerkey:*"}})
	if !wild.All("ops", PermAnswerKeyPreview, PermAnswerKeyCommit) || wild.Any("ops", PermReleaseRun) {
		t.Fatal("prefix wildcard")
	}
}

func TestRequire(t *testing.T) {
	h := Require(PermReleaseRun)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{"admin": 204, "operator": 403, "": 403} {
		req := httptest.NewRequest(http.MethodPost, "/releases/run", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("role %q: got %d want %d", role, rr.Code, want)
		}
	}
}
