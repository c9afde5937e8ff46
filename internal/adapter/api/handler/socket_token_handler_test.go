package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/internal/infrastructure/token"
	"brokerdesk/internal/usecase"
	"brokerdesk/pkg/errors"
)

type stubUserRepo struct {
	users map[string]*entity.User
}

func (r *stubUserRepo) Create(ctx context.Context, user *entity.User) error { return nil }

func (r *stubUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return u, nil
}

func (r *stubUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*entity.User, error) {
	return nil, nil
}

func (r *stubUserRepo) ListByRoles(ctx context.Context, roles []string) ([]*entity.User, error) {
	return nil, nil
}

func (r *stubUserRepo) Update(ctx context.Context, user *entity.User) error { return nil }

func newTokenHandler(users ...*entity.User) (*SocketTokenHandler, *token.Issuer) {
	repo := &stubUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	issuer := token.NewIssuer("test-secret", time.Hour)
	conversations := usecase.NewConversationUseCase(nil, repo, ratelimit.NewRateLimiter())
	return NewSocketTokenHandler(issuer, conversations), issuer
}

func TestGetTokenIssuesVerifiableToken(t *testing.T) {
	h, issuer := newTokenHandler(&entity.User{ID: "u1", Name: "Ana", Role: entity.RoleAdmin})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/socket/token", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("uid", "u1")

	assert.NoError(t, h.GetToken(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["token"])

	claims, err := issuer.Verify(body["token"])
	assert.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, entity.RoleAdmin, claims.Role)
}

func TestGetTokenRequiresSession(t *testing.T) {
	h, _ := newTokenHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/socket/token", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.GetToken(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetTokenUnknownUser(t *testing.T) {
	h, _ := newTokenHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/socket/token", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("uid", "ghost")

	assert.NoError(t, h.GetToken(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
