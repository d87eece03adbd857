// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はレビュー回答や継続フィードバックの自由記述テキストを
// サニタイズし、HTMLタグの混入やXSS攻撃からユーザーを保護する。
// bluemondayライブラリのStrictPolicyを使用し、全てのタグを除去して
// プレーンテキストのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
// レビュー回答および継続フィードバックメッセージの保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は自由記述テキストから全てのHTMLタグを除去して返す。
	// script, iframe, styleタグおよびon*イベント属性を含む全てのマークアップが除去される。
	// 前後の空白は取り除かれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// レビュー回答はチャットメッセージとして再掲示されるため、
// マークアップを一切許可しないStrictPolicyを採用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は自由記述テキストから全てのHTMLタグを除去して返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// インターフェース実装の検証
var _ TextSanitizerService = (*textSanitizer)(nil)
