package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"certexport/pkg/requestcontext"
)

// MockJWTValidator is a testify mock for JWTValidator
type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*JWTClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockHandler is a test handler that captures if it was called and the context
type mockHandler struct {
	called  bool
	context context.Context
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.called = true
	m.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareTestSuite struct {
	suite.Suite
	validator *MockJWTValidator
	next      *mockHandler
	logger    *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareTestSuite))
}

func (s *AuthMiddlewareTestSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.next = &mockHandler{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareTestSuite) serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/certificates/x", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (s *AuthMiddlewareTestSuite) TestValidToken() {
	s.validator.On("ValidateToken", "good").Return(&JWTClaims{Subject: "verifier-1", Scopes: []string{"certificates:export"}}, nil)

	rr := s.serve(RequireAuth(s.validator, s.logger)(s.next), "Bearer good")

	s.Equal(http.StatusOK, rr.Code)
	s.Require().True(s.next.called)
	s.Equal("verifier-1", requestcontext.Subject(s.next.context))
	s.Equal([]string{"certificates:export"}, requestcontext.Scopes(s.next.context))
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareTestSuite) TestInvalidToken() {
	s.validator.On("ValidateToken", "bad").Return(nil, errors.New("signature invalid"))

	rr := s.serve(RequireAuth(s.validator, s.logger)(s.next), "Bearer bad")

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.JSONEq(`{"error":"unauthorized","error_description":"Invalid or expired token"}`, rr.Body.String())
	s.False(s.next.called)
}

func (s *AuthMiddlewareTestSuite) TestMissingToken() {
	for _, header := range []string{"", "Basic abc", "Bearer "} {
		rr := s.serve(RequireAuth(s.validator, s.logger)(s.next), header)
		s.Equal(http.StatusUnauthorized, rr.Code, header)
		s.False(s.next.called)
	}
	s.validator.AssertNotCalled(s.T(), "ValidateToken", mock.Anything)
}

func (s *AuthMiddlewareTestSuite) TestRequireScope() {
	s.validator.On("ValidateToken", "limited").Return(&JWTClaims{Subject: "reader", Scopes: []string{"certificates:read"}}, nil)
	h := RequireAuth(s.validator, s.logger)(RequireScope("certificates:export", s.logger)(s.next))

	rr := s.serve(h, "Bearer limited")
	s.Equal(http.StatusForbidden, rr.Code)
	s.False(s.next.called)
}
