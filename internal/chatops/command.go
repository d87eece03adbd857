// Package chatops はチャットプラットフォームからの受信リクエストの解析機能を提供する。
// スラッシュコマンドのテキスト解析、リクエスト署名の検証、
// モーダル状態トークンの発行・検証、インタラクションペイロードの解析を含む。
package chatops

import (
	"regexp"
	"strings"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// mentionPattern はメンショントークン <@U123> または <@U123|name> にマッチする。
var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// dueDateLayout は--dueフラグの日付形式。
const dueDateLayout = "2006-01-02"

// ReviewCommand は /review コマンドの解析結果。
type ReviewCommand struct {
	SubjectUserID string     // 最初のメンション（レビュー対象者）
	PeerUserIDs   []string   // 2番目以降のメンション（ピアレビュアー）
	DueDate       *time.Time // --due=YYYY-MM-DD
	TemplateName  string     // --template=name
}

// FeedbackCommand は /feedback コマンドの解析結果。
// Messageが空の場合、呼び出し側はフィードバックモーダルを開く。
type FeedbackCommand struct {
	RecipientUserID string
	Message         string
	Kind            model.FeedbackKind
	Anonymous       bool
}

// ParseReviewCommand は /review コマンドのテキストを解析する。
// 形式: @subject [@peer...] [--due=YYYY-MM-DD] [--template=name]
// メンションが1つもない場合はINVALID_COMMANDエラーを返す。
func ParseReviewCommand(text string) (*ReviewCommand, error) {
	cmd := &ReviewCommand{}

	for _, token := range strings.Fields(text) {
		if m := mentionPattern.FindStringSubmatch(token); m != nil {
			if cmd.SubjectUserID == "" {
				cmd.SubjectUserID = m[1]
			} else {
				cmd.PeerUserIDs = append(cmd.PeerUserIDs, m[1])
			}
			continue
		}
		if value, ok := flagValue(token, "due"); ok {
			due, err := time.Parse(dueDateLayout, value)
			if err != nil {
				return nil, model.NewInvalidCommandError("--dueの日付形式はYYYY-MM-DDで指定してください")
			}
			cmd.DueDate = &due
			continue
		}
		if value, ok := flagValue(token, "template"); ok {
			if value == "" {
				return nil, model.NewInvalidCommandError("--templateにテンプレート名を指定してください")
			}
			cmd.TemplateName = value
			continue
		}
		if strings.HasPrefix(token, "--") {
			return nil, model.NewInvalidCommandError("不明なフラグです: " + token)
		}
		// メンションでもフラグでもないトークンは無視する
	}

	if cmd.SubjectUserID == "" {
		return nil, model.NewInvalidCommandError("レビュー対象者のメンションが必要です")
	}
	return cmd, nil
}

// ParseFeedbackCommand は /feedback コマンドのテキストを解析する。
// 形式: @user [--kind=praise|improvement|question] [--anonymous] [message...]
// メンション以降の残りテキストがメッセージ本文になる。
func ParseFeedbackCommand(text string) (*FeedbackCommand, error) {
	cmd := &FeedbackCommand{Kind: model.FeedbackKindGeneral}

	var messageParts []string
	for _, token := range strings.Fields(text) {
		if cmd.RecipientUserID == "" {
			if m := mentionPattern.FindStringSubmatch(token); m != nil {
				cmd.RecipientUserID = m[1]
				continue
			}
			return nil, model.NewInvalidCommandError("フィードバックの宛先メンションが必要です")
		}
		if value, ok := flagValue(token, "kind"); ok {
			kind, err := parseKind(value)
			if err != nil {
				return nil, err
			}
			cmd.Kind = kind
			continue
		}
		if token == "--anonymous" {
			cmd.Anonymous = true
			continue
		}
		messageParts = append(messageParts, token)
	}

	if cmd.RecipientUserID == "" {
		return nil, model.NewInvalidCommandError("フィードバックの宛先メンションが必要です")
	}
	cmd.Message = strings.Join(messageParts, " ")
	return cmd, nil
}

// flagValue は --name=value 形式のトークンから値を取り出す。
func flagValue(token, name string) (string, bool) {
	prefix := "--" + name + "="
	if !strings.HasPrefix(token, prefix) {
		return "", false
	}
	return strings.TrimPrefix(token, prefix), true
}

// parseKind はフィードバック種別の文字列を検証して返す。
func parseKind(value string) (model.FeedbackKind, error) {
	switch model.FeedbackKind(value) {
	case model.FeedbackKindGeneral, model.FeedbackKindPraise,
		model.FeedbackKindImprovement, model.FeedbackKindQuestion:
		return model.FeedbackKind(value), nil
	default:
		return "", model.NewInvalidCommandError("不明なフィードバック種別です: " + value)
	}
}
