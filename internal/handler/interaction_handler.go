package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/middleware"
	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/participant"
)

// HandleInteraction はボタン押下・モーダル提出のペイロードを処理する。
// POST /slack/interactions
func (h *SlackHandler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidCommandError("フォームの解析に失敗しました"))
		return
	}

	payload, err := chatops.ParseInteractionPayload(r.PostFormValue("payload"))
	if err != nil {
		h.logger.Error("インタラクションペイロードの解析に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewInvalidCommandError("ペイロードを解釈できませんでした"))
		return
	}

	ws, err := h.workspaces.FindByTeamID(r.Context(), payload.Team.ID)
	if err != nil {
		h.logger.Error("ワークスペースの取得に失敗しました",
			slog.String("team_id", payload.Team.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if ws == nil {
		middleware.WriteAPIError(w, model.NewWorkspaceNotFoundError(payload.Team.ID))
		return
	}

	switch payload.Type {
	case "block_actions":
		h.handleBlockActions(w, r, ws, payload)
	case "view_submission":
		h.handleViewSubmission(w, r, ws, payload)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleBlockActions はボタン押下を処理する。
// 「レビューを開始」ボタンでは参加者をin_progressへ遷移させ、
// テンプレートの設問から回答モーダルを開く。
func (h *SlackHandler) handleBlockActions(w http.ResponseWriter, r *http.Request, ws *model.Workspace, payload *chatops.InteractionPayload) {
	if len(payload.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	action := payload.Actions[0]
	if action.ActionID != actionStartReview {
		w.WriteHeader(http.StatusOK)
		return
	}

	participantID := action.Value
	p, err := h.marker.MarkStatus(r.Context(), participantID, model.ParticipantStatusInProgress)
	if err != nil {
		// すでにin_progressの場合は再度モーダルを開けるよう続行する。
		// completed済み等、それ以外の遷移エラーは通知して終了。
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidTransition {
			h.logger.Error("参加者ステータスの更新に失敗しました",
				slog.String("participant_id", participantID),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
			return
		}
		p, err = h.parts.FindByID(r.Context(), participantID)
		if err != nil || p == nil {
			middleware.WriteInternalServerError(w)
			return
		}
		if p.Status == model.ParticipantStatusCompleted {
			h.ackWithResponseURL(r.Context(), payload.ResponseURL, "このレビューはすでに提出済みです。")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	cycle, err := h.cycles.FindByID(r.Context(), p.CycleID)
	if err != nil || cycle == nil {
		h.logger.Error("サイクルの取得に失敗しました", slog.String("cycle_id", p.CycleID))
		middleware.WriteInternalServerError(w)
		return
	}

	tmpl, err := h.templates.ResolveForCycle(r.Context(), cycle)
	if err != nil {
		h.logger.Error("テンプレートの解決に失敗しました",
			slog.String("cycle_id", cycle.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	state, err := h.stateTokens.IssueReviewState(chatops.ReviewState{
		ParticipantID: p.ID,
		CycleID:       cycle.ID,
	})
	if err != nil {
		h.logger.Error("状態トークンの発行に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.client.OpenView(r.Context(), ws.BotToken, ws.TeamID, payload.TriggerID, buildReviewModal(tmpl, state)); err != nil {
		h.logger.Error("回答モーダルの表示に失敗しました",
			slog.String("participant_id", p.ID),
			slog.String("error", err.Error()),
		)
		h.ackWithResponseURL(r.Context(), payload.ResponseURL, "回答フォームを開けませんでした。しばらく待ってから再度お試しください。")
	}
	w.WriteHeader(http.StatusOK)
}

// handleViewSubmission はモーダル提出を処理する。
func (h *SlackHandler) handleViewSubmission(w http.ResponseWriter, r *http.Request, ws *model.Workspace, payload *chatops.InteractionPayload) {
	if payload.View == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch payload.View.CallbackID {
	case callbackReviewSubmission:
		h.handleReviewSubmission(w, r, ws, payload)
	case callbackFeedbackSubmission:
		h.handleFeedbackSubmission(w, r, ws, payload)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleReviewSubmission はレビュー回答モーダルの提出を処理する。
// 必須設問が未回答の場合はresponse_action=errorsで該当ブロックに
// エラーを表示させる。サイクルの完了判定（サマリー生成と完了通知を含む）は
// 応答期限を超えないよう、200を返した後のバックグラウンドで実行する。
func (h *SlackHandler) handleReviewSubmission(w http.ResponseWriter, r *http.Request, ws *model.Workspace, payload *chatops.InteractionPayload) {
	state, err := h.stateTokens.ParseReviewState(payload.View.PrivateMetadata)
	if err != nil {
		h.logger.Warn("状態トークンの検証に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewInvalidCommandError("フォームの有効期限が切れています。もう一度開き直してください。"))
		return
	}

	answers := extractAnswers(payload.View.State)
	result, err := h.reviews.SubmitParticipantFeedback(r.Context(), state.ParticipantID, answers)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRequiredAnswerMissing {
			// Fieldが未回答の設問ID（=ブロックID）を指す
			writeViewErrors(w, map[string]string{
				apiErr.Field: "この設問は必須です。",
			})
			return
		}
		h.logger.Error("回答の提出に失敗しました",
			slog.String("participant_id", state.ParticipantID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.WriteHeader(http.StatusOK)

	ctx, cancel := backgroundContext(r.Context())
	h.async(func() {
		defer cancel()
		if result.NewlyCompleted {
			if err := h.reviews.CheckCycleCompletion(ctx, result.CycleID); err != nil {
				h.logger.Error("サイクル完了判定に失敗しました",
					slog.String("cycle_id", result.CycleID),
					slog.String("error", err.Error()),
				)
			}
		}
		reviewer, err := h.resolvePerson(ctx, ws.ID, payload.User.ID, payload.User.Name)
		if err != nil {
			h.logger.Error("レビュアーの解決に失敗しました", slog.String("error", err.Error()))
			return
		}
		if err := h.notifier.SendSubmissionThanks(ctx, ws.ID, reviewer.ID); err != nil {
			h.logger.Error("提出完了通知の送信に失敗しました",
				slog.String("user_id", payload.User.ID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// handleFeedbackSubmission はフィードバックモーダルの提出を処理する。
func (h *SlackHandler) handleFeedbackSubmission(w http.ResponseWriter, r *http.Request, ws *model.Workspace, payload *chatops.InteractionPayload) {
	state, err := h.stateTokens.ParseFeedbackState(payload.View.PrivateMetadata)
	if err != nil {
		h.logger.Warn("状態トークンの検証に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewInvalidCommandError("フォームの有効期限が切れています。もう一度開き直してください。"))
		return
	}

	sender, err := h.resolvePerson(r.Context(), ws.ID, payload.User.ID, payload.User.Name)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	message := payload.View.State.InputValue(feedbackMessageBlockID, feedbackMessageAction)
	if strings.TrimSpace(message) == "" {
		writeViewErrors(w, map[string]string{
			feedbackMessageBlockID: "メッセージを入力してください。",
		})
		return
	}

	kind := model.FeedbackKindGeneral
	if v := payload.View.State.InputValue(feedbackKindBlockID, feedbackKindAction); v != "" {
		kind = model.FeedbackKind(v)
	}
	anonymous := payload.View.State.CheckboxChecked(feedbackAnonBlockID, feedbackAnonAction, feedbackAnonValue)

	fb, err := h.feedbacks.Send(r.Context(), ws.ID, sender.ID, state.RecipientPersonID, message, kind, anonymous)
	if err != nil {
		h.logger.Error("フィードバックの保存に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.WriteHeader(http.StatusOK)

	ctx, cancel := backgroundContext(r.Context())
	h.async(func() {
		defer cancel()
		if err := h.notifier.SendFeedbackReceived(ctx, fb); err != nil {
			h.logger.Error("フィードバック受信通知の送信に失敗しました",
				slog.String("feedback_id", fb.ID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// extractAnswers はモーダル入力状態から回答リストを組み立てる。
// action_idが"answer_"で始まる入力のみを回答として扱う。
// 評価か記述かは要素種別で判定する: static_selectの選択値をRatingに、
// それ以外の入力値をTextに設定する。記述回答が数字のみでも評価にはしない。
func extractAnswers(state chatops.PayloadViewState) []participant.Answer {
	answers := make([]participant.Answer, 0, len(state.Values))
	for blockID, inputs := range state.Values {
		for actionID, input := range inputs {
			if !strings.HasPrefix(actionID, answerActionPrefix) {
				continue
			}
			value := state.InputValue(blockID, actionID)
			if value == "" {
				continue
			}
			answer := participant.Answer{QuestionID: blockID}
			if input.Type == "static_select" {
				rating, err := strconv.Atoi(value)
				if err != nil || rating < 1 || rating > 5 {
					continue
				}
				answer.Rating = &rating
			} else {
				answer.Text = value
			}
			answers = append(answers, answer)
		}
	}
	return answers
}

// writeViewErrors はモーダル内にバリデーションエラーを表示させる応答を返す。
func writeViewErrors(w http.ResponseWriter, errs map[string]string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"response_action": "errors",
		"errors":          errs,
	})
}

// ackWithResponseURL はresponse_url経由でユーザーへの短い通知を送る。
func (h *SlackHandler) ackWithResponseURL(ctx context.Context, responseURL, text string) {
	if responseURL == "" {
		return
	}
	h.respond(ctx, responseURL, &notify.ResponseMessage{
		ResponseType: "ephemeral",
		Text:         text,
	})
}
