package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// Notifier はドメインイベントに対応する通知メッセージを組み立てて送信する。
// 送信先のトークン・外部ユーザーIDはリポジトリから都度解決する。
type Notifier struct {
	client     *Client
	workspaces repository.WorkspaceRepository
	persons    repository.PersonRepository
	logger     *slog.Logger
}

// NewNotifier はNotifierの新しいインスタンスを生成する。
func NewNotifier(
	client *Client,
	workspaces repository.WorkspaceRepository,
	persons repository.PersonRepository,
	logger *slog.Logger,
) *Notifier {
	return &Notifier{
		client:     client,
		workspaces: workspaces,
		persons:    persons,
		logger:     logger,
	}
}

// resolveDelivery はワークスペースと送信先Personを解決する。
func (n *Notifier) resolveDelivery(ctx context.Context, workspaceID, personID string) (*model.Workspace, *model.Person, error) {
	ws, err := n.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("ワークスペースの取得に失敗しました: %w", err)
	}
	person, err := n.persons.FindByID(ctx, personID)
	if err != nil {
		return nil, nil, fmt.Errorf("送信先の取得に失敗しました: %w", err)
	}
	return ws, person, nil
}

// SendReviewRequest はレビュー依頼をレビュアーにDMで送信する。
// メッセージには回答フォームを開くボタンが含まれる。
func (n *Notifier) SendReviewRequest(ctx context.Context, cycle *model.ReviewCycle, participant *model.Participant) error {
	ws, reviewer, err := n.resolveDelivery(ctx, cycle.WorkspaceID, participant.ReviewerID)
	if err != nil {
		return err
	}
	subject, err := n.persons.FindByID(ctx, cycle.SubjectID)
	if err != nil {
		return fmt.Errorf("レビュー対象者の取得に失敗しました: %w", err)
	}

	text := requestText(participant.Role, subject)
	blocks := []Block{
		SectionBlock(text),
		ActionsBlock("review_request",
			ButtonElement("start_review", "レビューを開始", participant.ID, "primary"),
		),
	}
	if cycle.DueDate != nil {
		blocks = append(blocks, ContextBlock(fmt.Sprintf("期限: %s", cycle.DueDate.Format("2006-01-02"))))
	}

	if err := n.client.PostMessage(ctx, ws.BotToken, ws.TeamID, reviewer.SlackUserID, text, blocks); err != nil {
		return model.NewDeliveryFailedError(reviewer.SlackUserID, err.Error())
	}
	n.logger.Info("レビュー依頼を送信しました",
		slog.String("cycle_id", cycle.ID),
		slog.String("participant_id", participant.ID),
		slog.String("role", string(participant.Role)),
	)
	return nil
}

// requestText はレビュアーのロールに応じた依頼文を返す。
func requestText(role model.ParticipantRole, subject *model.Person) string {
	switch role {
	case model.RoleSelf:
		return "セルフレビューの提出をお願いします。"
	case model.RoleManager:
		return fmt.Sprintf("<@%s> さんのマネージャーレビューの提出をお願いします。", subject.SlackUserID)
	default:
		return fmt.Sprintf("<@%s> さんのピアレビューの提出をお願いします。", subject.SlackUserID)
	}
}

// SendReminder は未回答の参加者にリマインダーをDMで送信する。
func (n *Notifier) SendReminder(ctx context.Context, cycle *model.ReviewCycle, participant *model.Participant) error {
	ws, reviewer, err := n.resolveDelivery(ctx, cycle.WorkspaceID, participant.ReviewerID)
	if err != nil {
		return err
	}
	subject, err := n.persons.FindByID(ctx, cycle.SubjectID)
	if err != nil {
		return fmt.Errorf("レビュー対象者の取得に失敗しました: %w", err)
	}

	text := fmt.Sprintf("リマインダー: <@%s> さんのレビューが未提出です。", subject.SlackUserID)
	if participant.Role == model.RoleSelf {
		text = "リマインダー: セルフレビューが未提出です。"
	}
	blocks := []Block{
		SectionBlock(text),
		ActionsBlock("review_reminder",
			ButtonElement("start_review", "レビューを開始", participant.ID, "primary"),
		),
	}

	if err := n.client.PostMessage(ctx, ws.BotToken, ws.TeamID, reviewer.SlackUserID, text, blocks); err != nil {
		return model.NewDeliveryFailedError(reviewer.SlackUserID, err.Error())
	}
	return nil
}

// NotifyCycleCompleted はサイクル完了通知を1人の受信者にDMで送信する。
// 受信者は対象者本人またはマネージャーであり、サマリー本文を含む。
func (n *Notifier) NotifyCycleCompleted(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
	ws, recipient, err := n.resolveDelivery(ctx, cycle.WorkspaceID, recipientID)
	if err != nil {
		return err
	}
	subject, err := n.persons.FindByID(ctx, cycle.SubjectID)
	if err != nil {
		return fmt.Errorf("レビュー対象者の取得に失敗しました: %w", err)
	}

	text := fmt.Sprintf("<@%s> さんのレビューサイクルが完了しました。", subject.SlackUserID)
	if recipientID == cycle.SubjectID {
		text = "あなたのレビューサイクルが完了しました。"
	}
	blocks := []Block{
		SectionBlock(text),
		DividerBlock(),
		SectionBlock(cycle.Summary),
	}

	if err := n.client.PostMessage(ctx, ws.BotToken, ws.TeamID, recipient.SlackUserID, text, blocks); err != nil {
		return model.NewDeliveryFailedError(recipient.SlackUserID, err.Error())
	}
	n.logger.Info("サイクル完了通知を送信しました",
		slog.String("cycle_id", cycle.ID),
		slog.String("recipient_id", recipientID),
	)
	return nil
}

// SendFeedbackReceived は継続的フィードバックの受信通知をDMで送信する。
// 匿名フィードバックの場合は送信者を表示しない。
func (n *Notifier) SendFeedbackReceived(ctx context.Context, fb *model.ContinuousFeedback) error {
	ws, recipient, err := n.resolveDelivery(ctx, fb.WorkspaceID, fb.ToPersonID)
	if err != nil {
		return err
	}

	from := "匿名のメンバー"
	if !fb.Anonymous && fb.FromPersonID != "" {
		sender, err := n.persons.FindByID(ctx, fb.FromPersonID)
		if err != nil {
			return fmt.Errorf("送信者の取得に失敗しました: %w", err)
		}
		from = fmt.Sprintf("<@%s>", sender.SlackUserID)
	}

	text := fmt.Sprintf("%s からフィードバックが届きました。", from)
	blocks := []Block{
		SectionBlock(text),
		SectionBlock(fmt.Sprintf("> %s", fb.Message)),
		ContextBlock(kindLabel(fb.Kind)),
	}

	if err := n.client.PostMessage(ctx, ws.BotToken, ws.TeamID, recipient.SlackUserID, text, blocks); err != nil {
		return model.NewDeliveryFailedError(recipient.SlackUserID, err.Error())
	}
	return nil
}

// kindLabel はフィードバック種別の表示ラベルを返す。
func kindLabel(kind model.FeedbackKind) string {
	switch kind {
	case model.FeedbackKindPraise:
		return "種別: 称賛"
	case model.FeedbackKindImprovement:
		return "種別: 改善提案"
	case model.FeedbackKindQuestion:
		return "種別: 質問"
	default:
		return "種別: 一般"
	}
}

// SendSubmissionThanks は回答提出後のお礼メッセージをDMで送信する。
// 送信失敗は提出処理を失敗させない（呼び出し側でログのみ）。
func (n *Notifier) SendSubmissionThanks(ctx context.Context, workspaceID, reviewerID string) error {
	ws, reviewer, err := n.resolveDelivery(ctx, workspaceID, reviewerID)
	if err != nil {
		return err
	}
	text := "レビューの提出ありがとうございました。"
	if err := n.client.PostMessage(ctx, ws.BotToken, ws.TeamID, reviewer.SlackUserID, text, nil); err != nil {
		return model.NewDeliveryFailedError(reviewer.SlackUserID, err.Error())
	}
	return nil
}
