package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubVerifier はSignatureVerifierのテスト用スタブ。
type stubVerifier struct {
	err       error
	gotTS     string
	gotSig    string
	gotBody   []byte
	callCount int
}

func (s *stubVerifier) Verify(timestamp, signature string, body []byte) error {
	s.callCount++
	s.gotTS = timestamp
	s.gotSig = signature
	s.gotBody = body
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSignatureMiddlewarePassesValidRequest は有効な署名のリクエストが通過することをテストする。
// 後続ハンドラーでボディが再読可能であることも確認する。
func TestSignatureMiddlewarePassesValidRequest(t *testing.T) {
	verifier := &stubVerifier{}
	mw := NewSignatureMiddleware(verifier, discardLogger())

	var handlerBody []byte
	var ctxBody []byte
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerBody, _ = io.ReadAll(r.Body)
		ctxBody, _ = RawBodyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte("token=x&team_id=T123")
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", "1735640000")
	req.Header.Set("X-Slack-Signature", "v0=abc")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if verifier.gotTS != "1735640000" || verifier.gotSig != "v0=abc" {
		t.Errorf("verifier got ts=%q sig=%q", verifier.gotTS, verifier.gotSig)
	}
	if !bytes.Equal(verifier.gotBody, body) {
		t.Error("verifier did not receive raw body")
	}
	if !bytes.Equal(handlerBody, body) {
		t.Error("handler could not re-read request body")
	}
	if !bytes.Equal(ctxBody, body) {
		t.Error("raw body not stored in context")
	}
}

// TestSignatureMiddlewareRejectsInvalidSignature は無効な署名が401で拒否されることをテストする。
func TestSignatureMiddlewareRejectsInvalidSignature(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("invalid signature")}
	mw := NewSignatureMiddleware(verifier, discardLogger())

	handlerCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/slack/commands", bytes.NewReader([]byte("body")))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if handlerCalled {
		t.Error("handler must not be called for invalid signature")
	}
}

// TestRawBodyFromContextAbsent は未検証コンテキストでfalseを返すことをテストする。
func TestRawBodyFromContextAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := RawBodyFromContext(req.Context()); ok {
		t.Error("expected false for context without verified body")
	}
}
