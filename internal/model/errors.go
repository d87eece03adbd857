// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 利用者に提示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, review, notify, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーション対象の入力ID（該当する場合のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeWorkspaceNotFound     = "WORKSPACE_NOT_FOUND"
	ErrCodePersonNotFound        = "PERSON_NOT_FOUND"
	ErrCodeCycleNotFound         = "CYCLE_NOT_FOUND"
	ErrCodeParticipantNotFound   = "PARTICIPANT_NOT_FOUND"
	ErrCodeTemplateNotFound      = "TEMPLATE_NOT_FOUND"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeAlreadyCompleted      = "ALREADY_COMPLETED"
	ErrCodeNoParticipants        = "NO_PARTICIPANTS"
	ErrCodeRequiredAnswerMissing = "REQUIRED_ANSWER_MISSING"
	ErrCodeDeliveryFailed        = "DELIVERY_FAILED"
	ErrCodeSummaryUnavailable    = "SUMMARY_UNAVAILABLE"
	ErrCodeInvalidCommand        = "INVALID_COMMAND"
	ErrCodeInvalidSignature      = "INVALID_SIGNATURE"
)

// NewWorkspaceNotFoundError はワークスペース未検出エラーを生成する。
func NewWorkspaceNotFoundError(teamID string) *APIError {
	return &APIError{
		Code:     ErrCodeWorkspaceNotFound,
		Message:  fmt.Sprintf("ワークスペースが見つかりません: %s", teamID),
		Category: "review",
		Action:   "アプリを再インストールしてください。",
	}
}

// NewPersonNotFoundError はユーザー未検出エラーを生成する。
func NewPersonNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodePersonNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", id),
		Category: "review",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewCycleNotFoundError はレビューサイクル未検出エラーを生成する。
func NewCycleNotFoundError(cycleID string) *APIError {
	return &APIError{
		Code:     ErrCodeCycleNotFound,
		Message:  fmt.Sprintf("指定されたレビューサイクルが見つかりません: %s", cycleID),
		Category: "review",
		Action:   "サイクルIDを確認してください。",
	}
}

// NewParticipantNotFoundError は参加者未検出エラーを生成する。
func NewParticipantNotFoundError(participantID string) *APIError {
	return &APIError{
		Code:     ErrCodeParticipantNotFound,
		Message:  fmt.Sprintf("指定された参加者が見つかりません: %s", participantID),
		Category: "review",
		Action:   "参加者IDを確認してください。",
	}
}

// NewTemplateNotFoundError はテンプレート未検出エラーを生成する。
func NewTemplateNotFoundError(templateID string) *APIError {
	return &APIError{
		Code:     ErrCodeTemplateNotFound,
		Message:  fmt.Sprintf("指定されたテンプレートが見つかりません: %s", templateID),
		Category: "review",
		Action:   "テンプレート名またはIDを確認してください。",
	}
}

// NewInvalidTransitionError はステータスの逆方向遷移エラーを生成する。
func NewInvalidTransitionError(from, to ParticipantStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("無効なステータス遷移です: %s → %s", from, to),
		Category: "review",
		Action:   "参加者のステータスは前方にのみ遷移できます。",
	}
}

// NewAlreadyCompletedError は完了済みサイクルへの再完了エラーを生成する。
func NewAlreadyCompletedError(cycleID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyCompleted,
		Message:  fmt.Sprintf("レビューサイクルはすでに完了しています: %s", cycleID),
		Category: "review",
		Action:   "完了済みのサイクルに対する操作はできません。",
	}
}

// NewNoParticipantsError は参加者ゼロのサイクルに対する完了試行エラーを生成する。
func NewNoParticipantsError(cycleID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoParticipants,
		Message:  fmt.Sprintf("参加者が存在しないため完了できません: %s", cycleID),
		Category: "review",
		Action:   "少なくとも1人の参加者を持つサイクルのみ完了できます。",
	}
}

// NewRequiredAnswerMissingError は必須設問の未回答エラーを生成する。
func NewRequiredAnswerMissingError(questionID string) *APIError {
	return &APIError{
		Code:     ErrCodeRequiredAnswerMissing,
		Message:  fmt.Sprintf("必須設問への回答がありません: %s", questionID),
		Category: "validation",
		Action:   "すべての必須設問に回答してから再提出してください。",
		Field:    questionID,
	}
}

// NewDeliveryFailedError は通知送信失敗エラーを生成する。
func NewDeliveryFailedError(userID string, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailed,
		Message:  fmt.Sprintf("通知の送信に失敗しました: %s: %s", userID, reason),
		Category: "notify",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSummaryUnavailableError は要約コラボレーター利用不可エラーを生成する。
func NewSummaryUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSummaryUnavailable,
		Message:  fmt.Sprintf("サマリー生成サービスが利用できません: %s", reason),
		Category: "system",
		Action:   "サイクルはプレースホルダー付きで完了します。対応は不要です。",
	}
}

// NewInvalidCommandError はコマンド解析失敗エラーを生成する。
func NewInvalidCommandError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCommand,
		Message:  fmt.Sprintf("コマンドの形式が正しくありません: %s", reason),
		Category: "validation",
		Action:   "使い方: /review @employee [@peer...] [--due=YYYY-MM-DD] [--template=name]",
	}
}

// NewInvalidSignatureError はリクエスト署名検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "リクエスト署名の検証に失敗しました。",
		Category: "validation",
		Action:   "署名シークレットの設定を確認してください。",
	}
}
