package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

// WriteAPIError はドメインエラーを統一フォーマットで書き込む。
// HTTPステータスコードはエラーコードから導出される。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, statusForCode(apiErr.Code), apiErr)
}

// statusForCode はエラーコードからHTTPステータスコードを導出する。
// 未知のコードは500として扱う。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidSignature:
		return http.StatusUnauthorized
	case model.ErrCodeWorkspaceNotFound,
		model.ErrCodePersonNotFound,
		model.ErrCodeCycleNotFound,
		model.ErrCodeParticipantNotFound,
		model.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidCommand,
		model.ErrCodeRequiredAnswerMissing,
		model.ErrCodeInvalidTransition,
		model.ErrCodeAlreadyCompleted,
		model.ErrCodeNoParticipants:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は指定ステータスコードで統一エラーフォーマットを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
