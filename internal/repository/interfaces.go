// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// WorkspaceRepository はワークスペースデータの永続化インターフェース。
type WorkspaceRepository interface {
	// FindByID は指定IDのワークスペースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Workspace, error)

	// FindByTeamID は外部テナントIDでワークスペースを検索する。見つからない場合はnilを返す。
	FindByTeamID(ctx context.Context, teamID string) (*model.Workspace, error)

	// Upsert はワークスペースを作成または更新する。
	// team_idの一意制約に基づき、再インストール・トークンローテーション時は
	// 既存行のトークン類と表示名を更新する。
	Upsert(ctx context.Context, ws *model.Workspace) (*model.Workspace, error)

	// ListAll は全ワークスペースを返す。リマインダースイープで使用する。
	ListAll(ctx context.Context) ([]*model.Workspace, error)

	// DeleteByTeamID はアンインストール時にワークスペースを削除する。
	// 配下のPersons、Templates、ReviewCyclesはCASCADE削除される。
	DeleteByTeamID(ctx context.Context, teamID string) error
}

// PersonRepository はレビュアー／従業員識別情報の永続化インターフェース。
type PersonRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Person, error)

	// FindByWorkspaceAndSlackID は(workspace_id, slack_user_id)でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByWorkspaceAndSlackID(ctx context.Context, workspaceID, slackUserID string) (*model.Person, error)

	// GetOrCreate は自然キー(workspace_id, slack_user_id)でユーザーを取得し、
	// 存在しない場合は作成する。INSERT時の一意制約違反は「既存行の取得」として
	// 扱い、エラーにしない。
	GetOrCreate(ctx context.Context, person *model.Person) (*model.Person, error)

	// UpdateProfile は表示名・メール・ロールタグを更新する。空の値は無視する。
	UpdateProfile(ctx context.Context, id, name, email, role string) error
}

// TemplateRepository はレビューテンプレートの永続化インターフェース。
// テンプレートは不変で、編集は新バージョン行の挿入として扱う。
type TemplateRepository interface {
	// FindByID は指定IDのテンプレートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Template, error)

	// FindDefault はワークスペースのデフォルトテンプレートを取得する。
	// 未設定の場合はnilを返す（呼び出し側が組み込みテンプレートにフォールバックする）。
	FindDefault(ctx context.Context, workspaceID string) (*model.Template, error)

	// FindLatestByName は指定名の最新バージョンのテンプレートを取得する。
	// 見つからない場合はnilを返す。
	FindLatestByName(ctx context.Context, workspaceID, name string) (*model.Template, error)

	// Create はテンプレートの新バージョンを挿入する。
	// is_default=trueの場合、同一ワークスペースの既存デフォルトを同一トランザクションで解除する。
	Create(ctx context.Context, tmpl *model.Template) error

	// ListByWorkspace はワークスペースのテンプレート一覧を返す（デフォルト優先、新しい順）。
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Template, error)
}

// CycleRepository はレビューサイクルの永続化インターフェース。
type CycleRepository interface {
	// Create はレビューサイクルを作成する。
	Create(ctx context.Context, cycle *model.ReviewCycle) error

	// FindByID は指定IDのサイクルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ReviewCycle, error)

	// MarkInProgress はstatus=pendingのサイクルをin_progressへ遷移する。
	// 条件付きUPDATEのため、すでにin_progress/completedの場合は何もしない。
	MarkInProgress(ctx context.Context, id string) error

	// CompleteIfNotCompleted はstatus≠completedのサイクルをcompletedへ原子的に
	// 遷移し、completed_atとsummaryを設定する。遷移が実際に行われた場合のみ
	// trueを返す。falseは他の呼び出しが先に完了させたことを意味し、
	// 呼び出し側は副作用を実行してはならない。
	CompleteIfNotCompleted(ctx context.Context, id, summary string) (bool, error)

	// ListByWorkspaceAndSubject は対象者のサイクル一覧を新しい順で返す。
	ListByWorkspaceAndSubject(ctx context.Context, workspaceID, subjectID string) ([]*model.ReviewCycle, error)
}

// ParticipantRepository は参加者データの永続化インターフェース。
type ParticipantRepository interface {
	// Create は参加者を作成する。(cycle_id, reviewer_id)は一意。
	Create(ctx context.Context, p *model.Participant) error

	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Participant, error)

	// FindByCycleAndReviewer は(cycle_id, reviewer_id)で参加者を検索する。
	// 見つからない場合はnilを返す。
	FindByCycleAndReviewer(ctx context.Context, cycleID, reviewerID string) (*model.Participant, error)

	// ListByCycle はサイクルの参加者一覧を返す。完了集約判定で使用する。
	ListByCycle(ctx context.Context, cycleID string) ([]*model.Participant, error)

	// UpdateStatus は参加者のステータスを更新する。
	// completedAtはcompleted遷移時のみ非nilを渡す。
	// 遷移規則の検証は呼び出し側（participant.Tracker）が行う。
	UpdateStatus(ctx context.Context, id string, status model.ParticipantStatus, completedAt *time.Time) error

	// TouchReminder はreminder_sent_atを指定時刻に更新する。ステータスは変更しない。
	TouchReminder(ctx context.Context, id string, at time.Time) error

	// ListDueForReminder はリマインド対象の参加者を返す。
	// status=pending かつ (reminder_sent_at IS NULL または cutoffより古い) かつ
	// 所属サイクルが指定ワークスペースかつ未完了のもの。
	ListDueForReminder(ctx context.Context, workspaceID string, cutoff time.Time) ([]*model.Participant, error)

	// ListPendingByReviewer はレビュアーの未完了の回答義務一覧を返す。
	// アプリホームの未対応レビュー表示で使用する。
	ListPendingByReviewer(ctx context.Context, workspaceID, reviewerID string) ([]*model.Participant, error)
}

// FeedbackResponseRepository は設問回答の永続化インターフェース。
type FeedbackResponseRepository interface {
	// Upsert は(participant_id, question_id)をキーに回答を作成または上書きする。
	// 再提出は重複行を作らず、最新の回答のみが残る。
	Upsert(ctx context.Context, resp *model.FeedbackResponse) error

	// ListByCycle はサイクルの全回答を返す。サマリー生成で使用する。
	ListByCycle(ctx context.Context, cycleID string) ([]*model.FeedbackResponse, error)
}

// ContinuousFeedbackRepository は継続的フィードバックの永続化インターフェース。
type ContinuousFeedbackRepository interface {
	// Create は継続的フィードバックを保存する。
	// 匿名の場合はfrom_person_idをNULLで書き込む。
	Create(ctx context.Context, fb *model.ContinuousFeedback) error

	// ListByRecipient は受信者宛のフィードバック一覧を新しい順で返す。
	ListByRecipient(ctx context.Context, workspaceID, toPersonID string) ([]*model.ContinuousFeedback, error)
}
