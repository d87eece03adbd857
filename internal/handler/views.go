package handler

import (
	"fmt"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/review"
)

// モーダルとアプリホームのcallback_id・要素ID。
// インタラクションハンドラ側の分岐と対応する。
const (
	callbackReviewSubmission   = "review_submission"
	callbackFeedbackSubmission = "feedback_submission"

	actionStartReview = "start_review"

	feedbackMessageBlockID = "feedback_message"
	feedbackMessageAction  = "message"
	feedbackKindBlockID    = "feedback_kind"
	feedbackKindAction     = "kind"
	feedbackAnonBlockID    = "feedback_anonymous"
	feedbackAnonAction     = "anonymous"
	feedbackAnonValue      = "anonymous"

	answerActionPrefix = "answer_"
)

// buildReviewModal はテンプレートの設問からレビュー回答モーダルを組み立てる。
// 各設問は block_id=設問ID、action_id="answer_"+設問ID のinputブロックになる。
func buildReviewModal(tmpl *model.Template, stateToken string) *notify.View {
	blocks := make([]notify.Block, 0, len(tmpl.Questions))
	for _, q := range tmpl.Questions {
		var element notify.Element
		switch q.Kind {
		case model.QuestionKindRating:
			element = notify.RatingSelectElement(answerActionPrefix + q.ID)
		default:
			element = notify.TextInputElement(answerActionPrefix+q.ID, "回答を入力", true)
		}
		blocks = append(blocks, notify.InputBlock(q.ID, q.Prompt, element, !q.Required))
	}
	return &notify.View{
		Type:            "modal",
		CallbackID:      callbackReviewSubmission,
		PrivateMetadata: stateToken,
		Title:           notify.PlainText("レビュー回答"),
		Submit:          notify.PlainText("提出"),
		Close:           notify.PlainText("キャンセル"),
		Blocks:          blocks,
	}
}

// buildFeedbackModal は継続的フィードバックの入力モーダルを組み立てる。
func buildFeedbackModal(stateToken string) *notify.View {
	kindOptions := []notify.Option{
		{Text: notify.PlainText("一般"), Value: string(model.FeedbackKindGeneral)},
		{Text: notify.PlainText("称賛"), Value: string(model.FeedbackKindPraise)},
		{Text: notify.PlainText("改善提案"), Value: string(model.FeedbackKindImprovement)},
		{Text: notify.PlainText("質問"), Value: string(model.FeedbackKindQuestion)},
	}
	return &notify.View{
		Type:            "modal",
		CallbackID:      callbackFeedbackSubmission,
		PrivateMetadata: stateToken,
		Title:           notify.PlainText("フィードバック送信"),
		Submit:          notify.PlainText("送信"),
		Close:           notify.PlainText("キャンセル"),
		Blocks: []notify.Block{
			notify.InputBlock(feedbackMessageBlockID, "メッセージ",
				notify.TextInputElement(feedbackMessageAction, "フィードバックの内容", true), false),
			notify.InputBlock(feedbackKindBlockID, "種別", notify.Element{
				Type:        "static_select",
				ActionID:    feedbackKindAction,
				Placeholder: notify.PlainText("種別を選択"),
				Options:     kindOptions,
			}, true),
			notify.InputBlock(feedbackAnonBlockID, "送信オプション", notify.Element{
				Type:     "checkboxes",
				ActionID: feedbackAnonAction,
				Options: []notify.Option{
					{Text: notify.PlainText("匿名で送信する"), Value: feedbackAnonValue},
				},
			}, true),
		},
	}
}

// buildHomeView はアプリホームタブの表示を組み立てる。
// 未対応レビューの一覧と、それぞれの回答開始ボタンを並べる。
func buildHomeView(pending []review.PendingReview, subjects map[string]*model.Person) *notify.View {
	blocks := []notify.Block{
		notify.SectionBlock("*未対応のレビュー*"),
		notify.DividerBlock(),
	}

	if len(pending) == 0 {
		blocks = append(blocks, notify.SectionBlock("未対応のレビューはありません :tada:"))
	}

	for _, pr := range pending {
		subjectName := "不明なユーザー"
		if subject, ok := subjects[pr.Cycle.SubjectID]; ok && subject != nil {
			if subject.Name != "" {
				subjectName = subject.Name
			} else {
				subjectName = fmt.Sprintf("<@%s>", subject.SlackUserID)
			}
		}
		blocks = append(blocks,
			notify.SectionBlock(fmt.Sprintf("*%s* さんのレビュー（%s）", subjectName, roleLabel(pr.Participant.Role))),
		)
		if pr.Cycle.DueDate != nil {
			blocks = append(blocks, notify.ContextBlock("期限: "+pr.Cycle.DueDate.Format("2006-01-02")))
		}
		blocks = append(blocks, notify.ActionsBlock(
			"home_"+pr.Participant.ID,
			notify.ButtonElement(actionStartReview, "回答を開始", pr.Participant.ID, "primary"),
		))
	}

	return &notify.View{
		Type:   "home",
		Blocks: blocks,
	}
}

// roleLabel は参加者ロールの表示名を返す。
func roleLabel(role model.ParticipantRole) string {
	switch role {
	case model.RoleSelf:
		return "セルフレビュー"
	case model.RoleManager:
		return "マネージャーレビュー"
	default:
		return "ピアレビュー"
	}
}
