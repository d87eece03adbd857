package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/middleware"
	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// HandleEvent はイベントサブスクリプションのコールバックを処理する。
// POST /slack/events
//
// url_verificationのchallenge応答と、アプリホームを開いた際の
// ホームタブ更新を扱う。それ以外のイベントは受領のみ。
func (h *SlackHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := middleware.RawBodyFromContext(r.Context())
	if !ok {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			middleware.WriteAPIError(w, model.NewInvalidCommandError("リクエストボディの読み込みに失敗しました"))
			return
		}
	}

	event, err := chatops.ParseEventCallback(body)
	if err != nil {
		h.logger.Error("イベントペイロードの解析に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewInvalidCommandError("ペイロードを解釈できませんでした"))
		return
	}

	switch event.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(event.Challenge))
		return
	case "event_callback":
		// 受領応答を即時に返し、処理はバックグラウンドで行う
		w.WriteHeader(http.StatusOK)
		if event.Event != nil && event.Event.Type == "app_home_opened" {
			ctx, cancel := backgroundContext(r.Context())
			teamID := event.TeamID
			userID := event.Event.User
			h.async(func() {
				defer cancel()
				h.publishHome(ctx, teamID, userID)
			})
		}
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// publishHome は指定ユーザーのアプリホームタブを未対応レビュー一覧で更新する。
func (h *SlackHandler) publishHome(ctx context.Context, teamID, slackUserID string) {
	ws, err := h.workspaces.FindByTeamID(ctx, teamID)
	if err != nil || ws == nil {
		h.logger.Error("ワークスペースの取得に失敗しました", slog.String("team_id", teamID))
		return
	}

	viewer, err := h.resolvePerson(ctx, ws.ID, slackUserID, "")
	if err != nil {
		h.logger.Error("ユーザーの解決に失敗しました",
			slog.String("slack_user_id", slackUserID),
			slog.String("error", err.Error()),
		)
		return
	}

	pending, err := h.reviews.ListPendingReviews(ctx, ws.ID, viewer.ID)
	if err != nil {
		h.logger.Error("未対応レビュー一覧の取得に失敗しました",
			slog.String("person_id", viewer.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	// 対象者の表示名解決。失敗した分はビルダー側でフォールバックする
	subjects := make(map[string]*model.Person, len(pending))
	for _, pr := range pending {
		if _, ok := subjects[pr.Cycle.SubjectID]; ok {
			continue
		}
		subject, err := h.persons.FindByID(ctx, pr.Cycle.SubjectID)
		if err != nil {
			continue
		}
		subjects[pr.Cycle.SubjectID] = subject
	}

	if err := h.client.PublishView(ctx, ws.BotToken, ws.TeamID, slackUserID, buildHomeView(pending, subjects)); err != nil {
		h.logger.Error("ホームタブの更新に失敗しました",
			slog.String("slack_user_id", slackUserID),
			slog.String("error", err.Error()),
		)
	}
}
