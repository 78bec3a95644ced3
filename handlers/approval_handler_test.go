package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/services"
	"go.uber.org/zap"
)

// MockApprovalService is a mock implementation of ApprovalService
type MockApprovalService struct {
	mock.Mock
}

func identityResult(args mock.Arguments) (*models.Identity, error) {
	if v := args.Get(0); v != nil {
		return v.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockApprovalService) ListPending(ctx context.Context) ([]*models.Identity, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockApprovalService) Approve(ctx context.Context, userID string) (*models.Identity, error) {
	return identityResult(m.Called(ctx, userID))
}

func (m *MockApprovalService) ApproveWithRole(ctx context.Context, userID string, role *models.Role) (*models.Identity, error) {
	return identityResult(m.Called(ctx, userID, role))
}

func (m *MockApprovalService) Reject(ctx context.Context, userID string) (*models.Identity, error) {
	return identityResult(m.Called(ctx, userID))
}

func (m *MockApprovalService) Update(ctx context.Context, userID string, update models.UserUpdate) (*models.Identity, error) {
	return identityResult(m.Called(ctx, userID, update))
}

// MockAuditReader is a mock implementation of AuditReader
type MockAuditReader struct {
	mock.Mock
}

func (m *MockAuditReader) ListByTargetUser(ctx context.Context, targetUserID string, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, targetUserID, limit, offset)
	if v := args.Get(0); v != nil {
		return v.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type apiBody struct {
	Data    json.RawMessage        `json:"data"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

func decodeAPI(t *testing.T, w *httptest.ResponseRecorder) apiBody {
	t.Helper()
	var body apiBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestApprovalHandler_ListPending(t *testing.T) {
	t.Run("returns pending users", func(t *testing.T) {
		svc := new(MockApprovalService)
		svc.On("ListPending", mock.Anything).Return([]*models.Identity{
			{ID: "u-1", Email: "ana@example.com", Status: models.StatusPending},
		}, nil)

		h := NewApprovalHandler(svc, nil, zap.NewNop())
		w := httptest.NewRecorder()
		h.HandleListPending(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/pending", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

		var users []*models.Identity
		require.NoError(t, json.Unmarshal(decodeAPI(t, w).Data, &users))
		require.Len(t, users, 1)
		assert.Equal(t, "u-1", users[0].ID)
	})

	t.Run("upstream failure is a bad gateway", func(t *testing.T) {
		svc := new(MockApprovalService)
		svc.On("ListPending", mock.Anything).
			Return(nil, services.WrapExternal("Failed to load pending users", errors.New("dial tcp")))

		h := NewApprovalHandler(svc, nil, zap.NewNop())
		w := httptest.NewRecorder()
		h.HandleListPending(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/pending", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		body := decodeAPI(t, w)
		assert.Equal(t, "upstream_error", body.Error)
		assert.Equal(t, "Failed to load pending users", body.Message)
	})
}

func TestApprovalHandler_Mutations(t *testing.T) {
	approved := &models.Identity{ID: "u-1", Status: models.StatusApproved, Role: models.RoleMember}

	tests := []struct {
		name        string
		setup       func(svc *MockApprovalService)
		call        func(h *ApprovalHandler, w http.ResponseWriter, r *http.Request)
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name: "approve",
			setup: func(svc *MockApprovalService) {
				svc.On("Approve", mock.Anything, "u-1").Return(approved, nil)
			},
			call:        (*ApprovalHandler).HandleApprove,
			wantStatus:  http.StatusOK,
			wantMessage: "User approved",
		},
		{
			name: "approve with role",
			setup: func(svc *MockApprovalService) {
				svc.On("ApproveWithRole", mock.Anything, "u-1", mock.MatchedBy(func(r *models.Role) bool {
					return r != nil && *r == models.RoleLead
				})).Return(approved, nil)
			},
			call:        (*ApprovalHandler).HandleApproveWithRole,
			body:        `{"role":"LEAD"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "User approved with role",
		},
		{
			name: "approve with role missing role passes nil through",
			setup: func(svc *MockApprovalService) {
				svc.On("ApproveWithRole", mock.Anything, "u-1", (*models.Role)(nil)).
					Return(nil, services.ErrMissingRole)
			},
			call:        (*ApprovalHandler).HandleApproveWithRole,
			body:        `{}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "role is required",
		},
		{
			name:        "approve with role rejects malformed body",
			setup:       func(svc *MockApprovalService) {},
			call:        (*ApprovalHandler).HandleApproveWithRole,
			body:        `{"role":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid request body",
		},
		{
			name: "reject",
			setup: func(svc *MockApprovalService) {
				svc.On("Reject", mock.Anything, "u-1").Return(&models.Identity{ID: "u-1", Status: models.StatusRejected}, nil)
			},
			call:        (*ApprovalHandler).HandleReject,
			wantStatus:  http.StatusOK,
			wantMessage: "User rejected",
		},
		{
			name: "already processed is a conflict",
			setup: func(svc *MockApprovalService) {
				svc.On("Approve", mock.Anything, "u-1").Return(nil, services.ErrAlreadyProcessed)
			},
			call:        (*ApprovalHandler).HandleApprove,
			wantStatus:  http.StatusConflict,
			wantMessage: "user is no longer pending",
		},
		{
			name: "unknown user is not found",
			setup: func(svc *MockApprovalService) {
				svc.On("Reject", mock.Anything, "u-1").Return(nil, services.ErrUserNotFound)
			},
			call:        (*ApprovalHandler).HandleReject,
			wantStatus:  http.StatusNotFound,
			wantMessage: "user not found",
		},
		{
			name: "update",
			setup: func(svc *MockApprovalService) {
				svc.On("Update", mock.Anything, "u-1", mock.MatchedBy(func(u models.UserUpdate) bool {
					return u.JobTitle != nil && *u.JobTitle == "Engineer"
				})).Return(approved, nil)
			},
			call:        (*ApprovalHandler).HandleUpdate,
			body:        `{"jobTitle":"Engineer"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "User updated",
		},
		{
			name:        "update rejects unknown fields",
			setup:       func(svc *MockApprovalService) {},
			call:        (*ApprovalHandler).HandleUpdate,
			body:        `{"password":"x"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid request body",
		},
		{
			name: "untyped failure hides the cause",
			setup: func(svc *MockApprovalService) {
				svc.On("Update", mock.Anything, "u-1", mock.Anything).Return(nil, errors.New("pq: secret detail"))
			},
			call:        (*ApprovalHandler).HandleUpdate,
			body:        `{"name":"Ana"}`,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockApprovalService)
			tt.setup(svc)
			h := NewApprovalHandler(svc, nil, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/x", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req = withURLParam(req, "id", "u-1")
			w := httptest.NewRecorder()

			tt.call(h, w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMessage, decodeAPI(t, w).Message)
			svc.AssertExpectations(t)
		})
	}
}

func TestApprovalHandler_AuditTrail(t *testing.T) {
	t.Run("disabled without a reader", func(t *testing.T) {
		h := NewApprovalHandler(new(MockApprovalService), nil, zap.NewNop())
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/audit", nil), "id", "u-1")

		h.HandleAuditTrail(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("passes paging through", func(t *testing.T) {
		reader := new(MockAuditReader)
		entry := models.NewAuditLog("admin-1", "u-1", models.AuditActionUserApproved)
		reader.On("ListByTargetUser", mock.Anything, "u-1", 10, 20).Return([]*models.AuditLog{entry}, nil)

		h := NewApprovalHandler(new(MockApprovalService), reader, zap.NewNop())
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/audit?limit=10&offset=20", nil), "id", "u-1")

		h.HandleAuditTrail(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var logs []*models.AuditLog
		require.NoError(t, json.Unmarshal(decodeAPI(t, w).Data, &logs))
		require.Len(t, logs, 1)
		assert.Equal(t, entry.ID, logs[0].ID)
		reader.AssertExpectations(t)
	})

	t.Run("read failure is internal", func(t *testing.T) {
		reader := new(MockAuditReader)
		reader.On("ListByTargetUser", mock.Anything, "u-1", 0, 0).Return(nil, errors.New("connection refused"))

		h := NewApprovalHandler(new(MockApprovalService), reader, zap.NewNop())
		w := httptest.NewRecorder()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/audit", nil), "id", "u-1")

		h.HandleAuditTrail(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
