package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

type stubValidator struct {
	actors map[string]models.Actor
}

func (v stubValidator) ValidateToken(_ context.Context, token string) (models.Actor, error) {
	actor, ok := v.actors[token]
	if !ok {
		return models.Actor{}, apperrors.Unauthorized("invalid or expired token")
	}
	return actor, nil
}

func TestBearerAuth(t *testing.T) {
	requester := models.Actor{ID: uuid.New(), Role: models.RoleRequester}
	validator := stubValidator{actors: map[string]models.Actor{"good-token": requester}}

	var seen models.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromCtx(r.Context())
		require.True(t, ok, "actor missing from context")
		seen = actor
		w.WriteHeader(http.StatusNoContent)
	})
	handler := BearerAuth(validator)(next)

	cases := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer good-token", http.StatusNoContent},
		{"case-insensitive scheme", "bearer good-token", http.StatusNoContent},
		{"unknown token", "Bearer bad-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"bare token", "good-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusNoContent {
				assert.Equal(t, requester.ID, seen.ID)
				assert.Equal(t, models.RoleRequester, seen.Role)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRole(models.RoleRequester)(next)

	cases := []struct {
		name       string
		actor      *models.Actor
		wantStatus int
	}{
		{"allowed role", &models.Actor{ID: uuid.New(), Role: models.RoleRequester}, http.StatusNoContent},
		{"admin always passes", &models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, http.StatusNoContent},
		{"disallowed role", &models.Actor{ID: uuid.New(), Role: models.RoleProvider}, http.StatusForbidden},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
			if tc.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
