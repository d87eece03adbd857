package chatops

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

// sign はテスト用に正しい署名を生成する。
func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// TestVerify は署名検証の正常系と異常系をテストする。
func TestVerify(t *testing.T) {
	secret := "test-signing-secret"
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	body := []byte("token=x&team_id=T123&text=%3C%40U111%3E")

	newVerifier := func() *SignatureVerifier {
		v := NewSignatureVerifier(secret)
		v.now = func() time.Time { return now }
		return v
	}

	t.Run("正しい署名は通過する", func(t *testing.T) {
		ts := strconv.FormatInt(now.Unix(), 10)
		v := newVerifier()
		if err := v.Verify(ts, sign(secret, ts, body), body); err != nil {
			t.Errorf("Verify() error = %v, want nil", err)
		}
	})

	t.Run("誤ったシークレットの署名は拒否する", func(t *testing.T) {
		ts := strconv.FormatInt(now.Unix(), 10)
		v := newVerifier()
		if err := v.Verify(ts, sign("wrong-secret", ts, body), body); err == nil {
			t.Error("expected error for signature with wrong secret")
		}
	})

	t.Run("改ざんされたボディは拒否する", func(t *testing.T) {
		ts := strconv.FormatInt(now.Unix(), 10)
		v := newVerifier()
		tampered := []byte("token=x&team_id=T123&text=%3C%40U999%3E")
		if err := v.Verify(ts, sign(secret, ts, body), tampered); err == nil {
			t.Error("expected error for tampered body")
		}
	})

	t.Run("古いタイムスタンプは拒否する", func(t *testing.T) {
		old := now.Add(-10 * time.Minute)
		ts := strconv.FormatInt(old.Unix(), 10)
		v := newVerifier()
		if err := v.Verify(ts, sign(secret, ts, body), body); err == nil {
			t.Error("expected error for stale timestamp")
		}
	})

	t.Run("未来のタイムスタンプは拒否する", func(t *testing.T) {
		future := now.Add(10 * time.Minute)
		ts := strconv.FormatInt(future.Unix(), 10)
		v := newVerifier()
		if err := v.Verify(ts, sign(secret, ts, body), body); err == nil {
			t.Error("expected error for future timestamp")
		}
	})

	t.Run("数値でないタイムスタンプは拒否する", func(t *testing.T) {
		v := newVerifier()
		if err := v.Verify("not-a-number", "v0=abc", body); err == nil {
			t.Error("expected error for non-numeric timestamp")
		}
	})
}
