package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/middleware"
	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/review"
)

// HandleCommand はスラッシュコマンドを処理する。
// POST /slack/commands
//
// /review は即時に受付応答を返し、サイクル作成と依頼通知を
// バックグラウンドで実行して結果をresponse_urlへ送信する
// （プラットフォームの3秒応答制限のため）。
// /feedback は同期処理して応答を直接返す。
func (h *SlackHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidCommandError("フォームの解析に失敗しました"))
		return
	}

	teamID := r.PostFormValue("team_id")
	ws, err := h.workspaces.FindByTeamID(r.Context(), teamID)
	if err != nil {
		h.logger.Error("ワークスペースの取得に失敗しました",
			slog.String("team_id", teamID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if ws == nil {
		middleware.WriteAPIError(w, model.NewWorkspaceNotFoundError(teamID))
		return
	}

	initiator, err := h.resolvePerson(r.Context(), ws.ID, r.PostFormValue("user_id"), r.PostFormValue("user_name"))
	if err != nil {
		h.logger.Error("発行者の解決に失敗しました",
			slog.String("team_id", teamID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	command := r.PostFormValue("command")
	text := r.PostFormValue("text")

	switch command {
	case "/review":
		h.handleReviewCommand(w, r, ws, initiator, text)
	case "/feedback":
		h.handleFeedbackCommand(w, r, ws, initiator, text)
	default:
		writeEphemeral(w, "不明なコマンドです: "+command)
	}
}

// handleReviewCommand は /review コマンドを処理する。
// 受付応答を即時に返し、サイクル作成はバックグラウンドで実行する。
func (h *SlackHandler) handleReviewCommand(w http.ResponseWriter, r *http.Request, ws *model.Workspace, initiator *model.Person, text string) {
	cmd, err := chatops.ParseReviewCommand(text)
	if err != nil {
		writeEphemeral(w, apiErrorMessage(err))
		return
	}

	responseURL := r.PostFormValue("response_url")
	ctx, cancel := backgroundContext(r.Context())

	h.async(func() {
		defer cancel()

		subject, err := h.resolvePerson(ctx, ws.ID, cmd.SubjectUserID, "")
		if err != nil {
			h.respondError(ctx, responseURL, err)
			return
		}

		// 発行者がレビューを開始した場合、発行者をマネージャーとして記録する。
		// 自分自身のレビューを開始した場合はマネージャーなし。
		managerID := initiator.ID
		if subject.ID == initiator.ID {
			managerID = ""
		}

		peerIDs := make([]string, 0, len(cmd.PeerUserIDs))
		for _, peerUserID := range cmd.PeerUserIDs {
			peer, err := h.resolvePerson(ctx, ws.ID, peerUserID, "")
			if err != nil {
				h.respondError(ctx, responseURL, err)
				return
			}
			peerIDs = append(peerIDs, peer.ID)
		}

		agg, err := h.reviews.InitiateCycle(ctx, review.InitiateCycleParams{
			WorkspaceID:  ws.ID,
			SubjectID:    subject.ID,
			ManagerID:    managerID,
			PeerIDs:      peerIDs,
			TemplateName: cmd.TemplateName,
			DueDate:      cmd.DueDate,
			CreatedBy:    initiator.ID,
		})
		if err != nil {
			h.respondError(ctx, responseURL, err)
			return
		}

		// 依頼通知は宛先ごとのベストエフォート。失敗してもサイクルは成立する。
		notified := 0
		for _, p := range agg.Participants {
			if err := h.notifier.SendReviewRequest(ctx, agg.Cycle, p); err != nil {
				h.logger.Error("レビュー依頼の送信に失敗しました",
					slog.String("cycle_id", agg.Cycle.ID),
					slog.String("participant_id", p.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			notified++
		}

		h.logger.Info("レビューサイクルを開始しました",
			slog.String("cycle_id", agg.Cycle.ID),
			slog.String("subject_id", subject.ID),
			slog.Int("participant_count", len(agg.Participants)),
			slog.Int("notified_count", notified),
		)

		h.respond(ctx, responseURL, &notify.ResponseMessage{
			ResponseType: "ephemeral",
			Text:         "レビューサイクルを開始しました。参加者に依頼を送信済みです。",
		})
	})

	writeEphemeral(w, "レビューサイクルを作成しています…")
}

// handleFeedbackCommand は /feedback コマンドを処理する。
// メッセージ付きの場合は即時保存し、なしの場合はフィードバックモーダルを開く。
func (h *SlackHandler) handleFeedbackCommand(w http.ResponseWriter, r *http.Request, ws *model.Workspace, initiator *model.Person, text string) {
	cmd, err := chatops.ParseFeedbackCommand(text)
	if err != nil {
		writeEphemeral(w, apiErrorMessage(err))
		return
	}

	recipient, err := h.resolvePerson(r.Context(), ws.ID, cmd.RecipientUserID, "")
	if err != nil {
		h.logger.Error("宛先の解決に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// メッセージなしの場合はモーダルで入力してもらう
	if cmd.Message == "" {
		state, err := h.stateTokens.IssueFeedbackState(chatops.FeedbackState{RecipientPersonID: recipient.ID})
		if err != nil {
			h.logger.Error("状態トークンの発行に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		view := buildFeedbackModal(state)
		if err := h.client.OpenView(r.Context(), ws.BotToken, ws.TeamID, r.PostFormValue("trigger_id"), view); err != nil {
			h.logger.Error("モーダルの表示に失敗しました", slog.String("error", err.Error()))
			writeEphemeral(w, "入力フォームを開けませんでした。しばらく待ってから再度お試しください。")
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	fb, err := h.feedbacks.Send(r.Context(), ws.ID, initiator.ID, recipient.ID, cmd.Message, cmd.Kind, cmd.Anonymous)
	if err != nil {
		writeEphemeral(w, apiErrorMessage(err))
		return
	}

	// 受信通知はベストエフォート
	if err := h.notifier.SendFeedbackReceived(r.Context(), fb); err != nil {
		h.logger.Error("フィードバック受信通知の送信に失敗しました",
			slog.String("feedback_id", fb.ID),
			slog.String("error", err.Error()),
		)
	}

	writeEphemeral(w, "フィードバックを送信しました。")
}

// respond はresponse_urlへの送信を行い、失敗をログに記録する。
func (h *SlackHandler) respond(ctx context.Context, responseURL string, msg *notify.ResponseMessage) {
	if err := h.client.PostToResponseURL(ctx, responseURL, msg); err != nil {
		h.logger.Error("コマンド応答の送信に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// respondError はエラー内容をresponse_urlへ送信する。
func (h *SlackHandler) respondError(ctx context.Context, responseURL string, err error) {
	h.respond(ctx, responseURL, &notify.ResponseMessage{
		ResponseType: "ephemeral",
		Text:         apiErrorMessage(err),
	})
}

// writeEphemeral は発行者のみに見える応答をHTTPレスポンスとして直接返す。
func writeEphemeral(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(notify.ResponseMessage{
		ResponseType: "ephemeral",
		Text:         text,
	})
}
