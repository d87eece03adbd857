// Package model はドメインモデルを定義する。
package model

import "time"

// Workspace はアプリがインストールされたチャットワークスペース（テナント）を表す。
// 外部テナントID（TeamID）ごとに最大1件しか存在しない。
type Workspace struct {
	ID             string
	TeamID         string // 外部テナントID（一意）
	TeamName       string
	BotToken       string // ワークスペース単位のアクセストークン
	BotUserID      string
	RefreshToken   string     // トークンローテーション用（空の場合あり）
	TokenExpiresAt *time.Time // トークン有効期限（nilの場合は無期限）
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Person はワークスペース内のレビュアー／従業員の識別情報を表す。
// 初回のやり取り時に遅延作成され、削除されることはない。
// (WorkspaceID, SlackUserID) の組は一意。
type Person struct {
	ID          string
	WorkspaceID string
	SlackUserID string // 外部ユーザーID
	Name        string
	Email       string // 取得できない場合は空
	Role        string // ロールタグ（user, admin等）。参加者ロールとは別物。
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
