// Package model はドメインモデルを定義する。
package model

import "time"

// CycleStatus はレビューサイクルの進行状態を表す。
type CycleStatus string

const (
	// CycleStatusPending は作成直後で回答が1件もない状態。
	CycleStatusPending CycleStatus = "pending"
	// CycleStatusInProgress は最初の回答が提出された状態。
	CycleStatusInProgress CycleStatus = "in_progress"
	// CycleStatusCompleted は全参加者の回答が完了した状態。
	CycleStatusCompleted CycleStatus = "completed"
)

// ReviewCycle は1人の対象者についてのフィードバック収集サイクルを表す。
// 集約ルートであり、ParticipantとFeedbackResponseを所有する。
// ステータスは単調に遷移し、completedから戻ることはない。
// Summaryはstatus=completedの場合にのみ設定される。
type ReviewCycle struct {
	ID          string
	WorkspaceID string
	SubjectID   string // レビュー対象者のPerson ID
	ManagerID   string // マネージャーのPerson ID（空の場合あり）
	TemplateID  string // 組み込みテンプレート使用時は空
	DueDate     *time.Time
	CreatedBy   string
	Status      CycleStatus
	Summary     string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParticipantRole はサイクル内でのレビュアーの立場を表す。
// ロールによって状態遷移が変わることはなく、通知文言のみが異なる。
type ParticipantRole string

const (
	// RoleSelf は本人によるセルフレビュー。
	RoleSelf ParticipantRole = "self"
	// RoleManager はマネージャーによるレビュー。
	RoleManager ParticipantRole = "manager"
	// RolePeer は同僚によるピアレビュー。
	RolePeer ParticipantRole = "peer"
)

// ParticipantStatus は参加者の回答状況を表す。
type ParticipantStatus string

const (
	// ParticipantStatusPending は未着手の状態。
	ParticipantStatusPending ParticipantStatus = "pending"
	// ParticipantStatusInProgress は回答フォームを開いた状態。
	ParticipantStatusInProgress ParticipantStatus = "in_progress"
	// ParticipantStatusCompleted は回答を提出済みの状態。
	ParticipantStatusCompleted ParticipantStatus = "completed"
)

// Participant は1人のレビュアーのサイクル内での回答義務を表す。
// (CycleID, ReviewerID) の組は一意。
// 遷移は pending→in_progress→completed または pending→completed のみで、
// 逆方向への遷移は許可されない。
type Participant struct {
	ID             string
	CycleID        string
	ReviewerID     string
	Role           ParticipantRole
	Status         ParticipantStatus
	CompletedAt    *time.Time // completed遷移時にのみ設定
	ReminderSentAt *time.Time // 最終リマインダー送信時刻
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransitionTo は現在のステータスからの前方遷移のみを許可する。
// 同一ステータスへの遷移も不許可（冪等な再設定は呼び出し側で弾く）。
func (s ParticipantStatus) CanTransitionTo(next ParticipantStatus) bool {
	switch s {
	case ParticipantStatusPending:
		return next == ParticipantStatusInProgress || next == ParticipantStatusCompleted
	case ParticipantStatusInProgress:
		return next == ParticipantStatusCompleted
	default:
		return false
	}
}

// FeedbackResponse は1人の参加者による1設問への回答を表す。
// テンプレートが後から変わっても履歴の意味が保たれるよう、
// 設問文（QuestionText）を非正規化して保持する。
// (ParticipantID, QuestionID) の組は一意で、再提出は上書きとなる。
type FeedbackResponse struct {
	ID            string
	ParticipantID string
	CycleID       string
	QuestionID    string
	QuestionText  string
	Response      string
	Rating        *int // 数値評価（1〜5）。自由記述設問の場合はnil。
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FeedbackKind は継続的フィードバックの種別を表す。
type FeedbackKind string

const (
	// FeedbackKindGeneral は一般的なフィードバック。
	FeedbackKindGeneral FeedbackKind = "general"
	// FeedbackKindPraise は称賛。
	FeedbackKindPraise FeedbackKind = "praise"
	// FeedbackKindImprovement は改善提案。
	FeedbackKindImprovement FeedbackKind = "improvement"
	// FeedbackKindQuestion は質問。
	FeedbackKindQuestion FeedbackKind = "question"
)

// ContinuousFeedback はサイクルとは独立した1対1のフィードバックメッセージ。
// 匿名の場合はFromPersonIDを書き込み時点で空にする（後から復元できない）。
type ContinuousFeedback struct {
	ID           string
	WorkspaceID  string
	FromPersonID string // 匿名の場合は空
	ToPersonID   string
	Message      string
	Kind         FeedbackKind
	Anonymous    bool
	CreatedAt    time.Time
}
