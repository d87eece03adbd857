package chatops

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// maxTimestampSkew は署名タイムスタンプの許容ずれ。
// リプレイ攻撃の防止のため、これより古い（または未来の）リクエストは拒否する。
const maxTimestampSkew = 5 * time.Minute

// signatureVersion は署名ベース文字列のバージョンプレフィックス。
const signatureVersion = "v0"

// SignatureVerifier は受信リクエストのHMAC-SHA256署名を検証する。
type SignatureVerifier struct {
	secret []byte
	now    func() time.Time // テスト用に差し替え可能
}

// NewSignatureVerifier はSignatureVerifierの新しいインスタンスを生成する。
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Verify はリクエスト署名を検証する。
// timestampはX-Slack-Request-Timestampヘッダ、signatureはX-Slack-Signatureヘッダ、
// bodyはリクエストボディの生バイト列。
// ベース文字列 "v0:{timestamp}:{body}" のHMAC-SHA256を
// "v0={hex}" 形式の署名と定数時間比較する。
func (v *SignatureVerifier) Verify(timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return model.NewInvalidSignatureError()
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > maxTimestampSkew || skew < -maxTimestampSkew {
		return model.NewInvalidSignatureError()
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return model.NewInvalidSignatureError()
	}
	return nil
}
