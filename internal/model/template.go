// Package model はドメインモデルを定義する。
package model

import "time"

// QuestionKind は設問の回答形式を表す。
type QuestionKind string

const (
	// QuestionKindText は自由記述の設問。
	QuestionKindText QuestionKind = "text"
	// QuestionKindRating は1〜5の数値評価の設問。
	QuestionKindRating QuestionKind = "rating"
)

// Question はテンプレート内の1つの設問を表す。
type Question struct {
	ID       string       `json:"id"`
	Prompt   string       `json:"prompt"`
	Kind     QuestionKind `json:"kind"`
	Required bool         `json:"required"`
}

// Template はレビューで使用する設問テンプレートを表す。
// サイクルから参照された後の変更を防ぐため、編集は新しいVersion行の
// 挿入として扱い、既存行は不変とする。
// ワークスペースごとにIsDefault=trueは最大1件。
type Template struct {
	ID          string
	WorkspaceID string
	Name        string
	Version     int
	IsDefault   bool
	Questions   []Question
	CreatedBy   string // 作成者のPerson ID。組み込みテンプレートの場合は空。
	CreatedAt   time.Time
}

// BuiltinTemplate はワークスペースにテンプレートが存在しない場合の
// フォールバックテンプレートを返す。IDは空でDB上には存在しない。
func BuiltinTemplate() *Template {
	return &Template{
		Name:    "Default Review",
		Version: 1,
		Questions: []Question{
			{ID: "q1", Prompt: "Overall Performance", Kind: QuestionKindRating, Required: true},
			{ID: "q2", Prompt: "What are their key strengths?", Kind: QuestionKindText, Required: true},
			{ID: "q3", Prompt: "What areas need improvement?", Kind: QuestionKindText, Required: true},
			{ID: "q4", Prompt: "Additional comments", Kind: QuestionKindText, Required: false},
		},
	}
}

// QuestionByID は指定IDの設問を返す。見つからない場合はnilを返す。
func (t *Template) QuestionByID(id string) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}
