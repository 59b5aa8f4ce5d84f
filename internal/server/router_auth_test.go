package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bashirbobboi/elevator-pitch/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/pitches", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenManager{validateErr: auth.ErrExpiredToken},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/pitches", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenManager{validateErr: errors.New("signature mismatch")},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestAuthorizeRequestAcceptsOwnerCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/events", http.NoBody)
	request.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: "cookie-token"})
	ctx.Request = request

	handler := &httpHandler{tokens: stubTokenManager{}, logger: zap.NewNop()}
	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to pass, got status %d", recorder.Code)
	}
	if ctx.GetString(ownerContextKey) != auth.OwnerSubject {
		t.Fatalf("expected owner subject in context")
	}
}

func TestAuthorizeRequestRejectsMissingCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/pitches", http.NoBody)

	handler := &httpHandler{tokens: stubTokenManager{}, logger: zap.NewNop()}
	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestHandleLoginIssuesTokenAndCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"open sesame"}`))
	ctx.Request.Header.Set("Content-Type", "application/json")

	handler := &httpHandler{
		passwords: stubPasswordChecker{password: "open sesame"},
		tokens:    stubTokenManager{},
		logger:    zap.NewNop(),
	}
	handler.handleLogin(ctx)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload loginResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.AccessToken != "issued-token" || payload.TokenType != "Bearer" || payload.ExpiresIn != 3600 {
		t.Fatalf("unexpected login payload %#v", payload)
	}
	if !strings.Contains(recorder.Header().Get("Set-Cookie"), auth.DefaultCookieName+"=issued-token") {
		t.Fatalf("expected owner cookie, got %q", recorder.Header().Get("Set-Cookie"))
	}
}

func TestHandleLoginRejectsWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"guess"}`))
	ctx.Request.Header.Set("Content-Type", "application/json")

	core, logs := observer.New(zapcore.InfoLevel)
	handler := &httpHandler{
		passwords: stubPasswordChecker{password: "open sesame"},
		tokens:    stubTokenManager{},
		logger:    zap.New(core),
	}
	handler.handleLogin(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if logs.FilterMessage("owner login rejected").Len() != 1 {
		t.Fatalf("expected rejected login to be logged")
	}
}

func TestAuthorizeRequestValidatesThroughTokenIssuer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	issued, err := issuer.IssueOwnerToken()
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	testCases := []struct {
		name       string
		prepare    func(*http.Request)
		wantStatus int
		wantLogs   int
	}{
		{name: "bearer", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+issued.Token) }, wantStatus: http.StatusOK},
		{name: "cookie", prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: issuer.CookieName(), Value: issued.Token}) }, wantStatus: http.StatusOK},
		{name: "missing", prepare: func(*http.Request) {}, wantStatus: http.StatusUnauthorized},
		{name: "forged", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged.token.value") }, wantStatus: http.StatusUnauthorized, wantLogs: 1},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/pitches", http.NoBody)
			testCase.prepare(ctx.Request)

			core, logs := observer.New(zapcore.DebugLevel)
			handler := &httpHandler{tokens: issuer, logger: zap.New(core)}
			handler.authorizeRequest(ctx)

			status := recorder.Code
			if !ctx.IsAborted() {
				status = http.StatusOK
			}
			if status != testCase.wantStatus {
				t.Fatalf("expected %d, got %d", testCase.wantStatus, status)
			}
			if logs.Len() != testCase.wantLogs {
				t.Fatalf("expected %d log entries, got %d", testCase.wantLogs, logs.Len())
			}
		})
	}
}
