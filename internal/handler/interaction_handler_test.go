package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/participant"
	"github.com/KlepaczKotletow/Performance-Review/internal/review"
)

// blockActionsPayload は「レビューを開始」ボタン押下のペイロードを組み立てる。
func blockActionsPayload(participantID string) string {
	return fmt.Sprintf(`{
		"type": "block_actions",
		"team": {"id": "T123"},
		"user": {"id": "U100", "username": "bob"},
		"trigger_id": "trigger-1",
		"response_url": "https://hooks.example.com/respond",
		"actions": [{"action_id": %q, "block_id": "b1", "value": %q}]
	}`, actionStartReview, participantID)
}

// viewSubmissionPayload はモーダル提出のペイロードを組み立てる。
func viewSubmissionPayload(callbackID, privateMetadata, valuesJSON string) string {
	return fmt.Sprintf(`{
		"type": "view_submission",
		"team": {"id": "T123"},
		"user": {"id": "U100", "username": "bob"},
		"view": {
			"id": "V1",
			"callback_id": %q,
			"private_metadata": %q,
			"state": {"values": %s}
		}
	}`, callbackID, privateMetadata, valuesJSON)
}

func TestHandleInteraction_StartReview_OpensModal(t *testing.T) {
	deps := defaultDeps()

	deps.marker.markStatusFn = func(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error) {
		if participantID != "p-1" {
			t.Errorf("participantID = %q, want %q", participantID, "p-1")
		}
		if status != model.ParticipantStatusInProgress {
			t.Errorf("status = %q, want %q", status, model.ParticipantStatusInProgress)
		}
		return &model.Participant{ID: "p-1", CycleID: "cycle-1", Status: status}, nil
	}
	deps.cycles.findByIDFn = func(ctx context.Context, id string) (*model.ReviewCycle, error) {
		return &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1"}, nil
	}

	var openedView *notify.View
	deps.client.openViewFn = func(ctx context.Context, token, teamID, triggerID string, view *notify.View) error {
		openedView = view
		return nil
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(blockActionsPayload("p-1")))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if openedView == nil {
		t.Fatal("回答モーダルが開かれていない")
	}
	if openedView.CallbackID != callbackReviewSubmission {
		t.Errorf("CallbackID = %q, want %q", openedView.CallbackID, callbackReviewSubmission)
	}

	// 組み込みテンプレートの4設問がすべてinputブロックになる
	if len(openedView.Blocks) != 4 {
		t.Fatalf("ブロック数 = %d, want 4", len(openedView.Blocks))
	}
	for i, q := range model.BuiltinTemplate().Questions {
		block := openedView.Blocks[i]
		if block.BlockID != q.ID {
			t.Errorf("blocks[%d].BlockID = %q, want %q", i, block.BlockID, q.ID)
		}
		if block.Optional == q.Required {
			t.Errorf("blocks[%d].Optional = %v, want %v", i, block.Optional, !q.Required)
		}
	}
	// 評価設問はstatic_select、記述設問はplain_text_input
	if openedView.Blocks[0].Element.Type != "static_select" {
		t.Errorf("評価設問の要素 = %q", openedView.Blocks[0].Element.Type)
	}
	if openedView.Blocks[1].Element.Type != "plain_text_input" {
		t.Errorf("記述設問の要素 = %q", openedView.Blocks[1].Element.Type)
	}

	// private_metadataのトークンが参加者とサイクルを指す
	state, err := chatops.NewStateTokens("test-state-secret").ParseReviewState(openedView.PrivateMetadata)
	if err != nil {
		t.Fatalf("状態トークンの検証に失敗: %v", err)
	}
	if state.ParticipantID != "p-1" || state.CycleID != "cycle-1" {
		t.Errorf("state = %+v", state)
	}
}

func TestHandleInteraction_StartReview_AlreadyInProgress(t *testing.T) {
	deps := defaultDeps()

	deps.marker.markStatusFn = func(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error) {
		return nil, model.NewInvalidTransitionError(model.ParticipantStatusInProgress, model.ParticipantStatusInProgress)
	}
	deps.parts.findByIDFn = func(ctx context.Context, id string) (*model.Participant, error) {
		return &model.Participant{ID: "p-1", CycleID: "cycle-1", Status: model.ParticipantStatusInProgress}, nil
	}
	deps.cycles.findByIDFn = func(ctx context.Context, id string) (*model.ReviewCycle, error) {
		return &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1"}, nil
	}

	opened := false
	deps.client.openViewFn = func(ctx context.Context, token, teamID, triggerID string, view *notify.View) error {
		opened = true
		return nil
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(blockActionsPayload("p-1")))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !opened {
		t.Error("in_progress済みでもモーダルを再度開けるべき")
	}
}

func TestHandleInteraction_StartReview_AlreadyCompleted(t *testing.T) {
	deps := defaultDeps()

	deps.marker.markStatusFn = func(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error) {
		return nil, model.NewInvalidTransitionError(model.ParticipantStatusCompleted, model.ParticipantStatusInProgress)
	}
	deps.parts.findByIDFn = func(ctx context.Context, id string) (*model.Participant, error) {
		return &model.Participant{ID: "p-1", CycleID: "cycle-1", Status: model.ParticipantStatusCompleted}, nil
	}

	opened := false
	deps.client.openViewFn = func(ctx context.Context, token, teamID, triggerID string, view *notify.View) error {
		opened = true
		return nil
	}
	var posted *notify.ResponseMessage
	deps.client.postToResponseURLFn = func(ctx context.Context, responseURL string, msg *notify.ResponseMessage) error {
		posted = msg
		return nil
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(blockActionsPayload("p-1")))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if opened {
		t.Error("提出済みの参加者にモーダルを開いた")
	}
	if posted == nil {
		t.Error("提出済みの案内が送られていない")
	}
}

func TestHandleInteraction_ReviewSubmission_Success(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	var gotParticipantID string
	var gotAnswers []participant.Answer
	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		gotParticipantID = participantID
		gotAnswers = answers
		return &review.SubmissionResult{CycleID: "cycle-1", NewlyCompleted: true}, nil
	}

	completionChecked := false
	deps.reviews.checkCycleCompletionFn = func(ctx context.Context, cycleID string) error {
		completionChecked = true
		if cycleID != "cycle-1" {
			t.Errorf("cycleID = %q, want cycle-1", cycleID)
		}
		return nil
	}

	thanked := false
	deps.notifier.sendSubmissionThanksFn = func(ctx context.Context, workspaceID, reviewerID string) error {
		thanked = true
		if workspaceID != "ws-1" {
			t.Errorf("workspaceID = %q", workspaceID)
		}
		return nil
	}

	values := `{
		"q1": {"answer_q1": {"type": "static_select", "selected_option": {"value": "4"}}},
		"q2": {"answer_q2": {"type": "plain_text_input", "value": "strong ownership"}}
	}`

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, values)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotParticipantID != "p-1" {
		t.Errorf("participantID = %q, want %q", gotParticipantID, "p-1")
	}
	if len(gotAnswers) != 2 {
		t.Fatalf("回答数 = %d, want 2", len(gotAnswers))
	}

	byQuestion := make(map[string]participant.Answer, len(gotAnswers))
	for _, a := range gotAnswers {
		byQuestion[a.QuestionID] = a
	}
	if a := byQuestion["q1"]; a.Rating == nil || *a.Rating != 4 {
		t.Errorf("q1のRating = %v, want 4", a.Rating)
	}
	if a := byQuestion["q2"]; a.Text != "strong ownership" {
		t.Errorf("q2のText = %q", a.Text)
	}
	if !thanked {
		t.Error("提出完了通知が送られていない")
	}
	if !completionChecked {
		t.Error("サイクルの完了判定が実行されていない")
	}
}

func TestHandleInteraction_ReviewSubmission_CompletionCheckRunsAfterAck(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		return &review.SubmissionResult{CycleID: "cycle-1", NewlyCompleted: true}, nil
	}

	// 完了判定はサマリー生成と通知送信を含み数秒かかりうるため、
	// 応答を書き込んだ後に実行されなければならない。
	w := httptest.NewRecorder()
	ackedBeforeCompletion := false
	deps.reviews.checkCycleCompletionFn = func(ctx context.Context, cycleID string) error {
		ackedBeforeCompletion = w.Code == http.StatusOK
		return nil
	}

	values := `{"q2": {"answer_q2": {"type": "plain_text_input", "value": "ok"}}}`
	h := newTestHandler(deps)
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, values)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !ackedBeforeCompletion {
		t.Error("完了判定が応答の書き込みより先に実行された")
	}
}

func TestHandleInteraction_ReviewSubmission_ResubmissionSkipsCompletionCheck(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	// 提出済み参加者の再提出（上書き）はNewlyCompletedがfalseで返る
	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		return &review.SubmissionResult{CycleID: "cycle-1"}, nil
	}
	deps.reviews.checkCycleCompletionFn = func(ctx context.Context, cycleID string) error {
		t.Error("再提出で完了判定が実行された")
		return nil
	}

	values := `{"q2": {"answer_q2": {"type": "plain_text_input", "value": "updated"}}}`
	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, values)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleInteraction_ReviewSubmission_RequiredAnswerMissing(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		return nil, model.NewRequiredAnswerMissingError("q2")
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, `{}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		ResponseAction string            `json:"response_action"`
		Errors         map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("応答のデコードに失敗: %v", err)
	}
	if resp.ResponseAction != "errors" {
		t.Errorf("response_action = %q, want errors", resp.ResponseAction)
	}
	if _, ok := resp.Errors["q2"]; !ok {
		t.Errorf("q2へのエラーがない: %v", resp.Errors)
	}
}

func TestHandleInteraction_ReviewSubmission_ErrorBlockFollowsField(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	// エラー表示先のブロックはFieldで決まる。文言の形式には依存しない。
	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		return nil, &model.APIError{
			Code:     model.ErrCodeRequiredAnswerMissing,
			Message:  "必須設問への回答がありません",
			Category: "validation",
			Field:    "q3",
		}
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, `{}`)))

	var resp struct {
		ResponseAction string            `json:"response_action"`
		Errors         map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("応答のデコードに失敗: %v", err)
	}
	if _, ok := resp.Errors["q3"]; !ok {
		t.Errorf("q3へのエラーがない: %v", resp.Errors)
	}
}

func TestHandleInteraction_ReviewSubmission_ExpiredStateToken(t *testing.T) {
	deps := defaultDeps()

	// 別シークレットで発行されたトークンは検証に失敗する
	stateToken, err := chatops.NewStateTokens("other-secret").IssueReviewState(chatops.ReviewState{ParticipantID: "p-1", CycleID: "cycle-1"})
	if err != nil {
		t.Fatal(err)
	}

	submitted := false
	deps.reviews.submitParticipantFeedbackFn = func(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error) {
		submitted = true
		return &review.SubmissionResult{}, nil
	}

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackReviewSubmission, stateToken, `{}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if submitted {
		t.Error("無効なトークンで提出が実行された")
	}
}

func TestHandleInteraction_FeedbackSubmission(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueFeedbackState(chatops.FeedbackState{RecipientPersonID: "person-U300"})
	if err != nil {
		t.Fatal(err)
	}

	var gotTo, gotMessage string
	var gotKind model.FeedbackKind
	var gotAnon bool
	deps.feedbacks.sendFn = func(ctx context.Context, workspaceID, fromPersonID, toPersonID, message string, kind model.FeedbackKind, anonymous bool) (*model.ContinuousFeedback, error) {
		gotTo, gotMessage, gotKind, gotAnon = toPersonID, message, kind, anonymous
		return &model.ContinuousFeedback{ID: "fb-1", ToPersonID: toPersonID}, nil
	}

	values := fmt.Sprintf(`{
		%q: {%q: {"type": "plain_text_input", "value": "keep it up"}},
		%q: {%q: {"type": "static_select", "selected_option": {"value": "praise"}}},
		%q: {%q: {"type": "checkboxes", "selected_options": [{"value": %q}]}}
	}`, feedbackMessageBlockID, feedbackMessageAction,
		feedbackKindBlockID, feedbackKindAction,
		feedbackAnonBlockID, feedbackAnonAction, feedbackAnonValue)

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackFeedbackSubmission, stateToken, values)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotTo != "person-U300" {
		t.Errorf("toPersonID = %q, want %q", gotTo, "person-U300")
	}
	if gotMessage != "keep it up" {
		t.Errorf("message = %q", gotMessage)
	}
	if gotKind != model.FeedbackKindPraise || !gotAnon {
		t.Errorf("kind/anonymous = %v/%v", gotKind, gotAnon)
	}
}

func TestHandleInteraction_FeedbackSubmission_EmptyMessage(t *testing.T) {
	deps := defaultDeps()

	tokens := chatops.NewStateTokens("test-state-secret")
	stateToken, err := tokens.IssueFeedbackState(chatops.FeedbackState{RecipientPersonID: "person-U300"})
	if err != nil {
		t.Fatal(err)
	}

	sent := false
	deps.feedbacks.sendFn = func(ctx context.Context, workspaceID, fromPersonID, toPersonID, message string, kind model.FeedbackKind, anonymous bool) (*model.ContinuousFeedback, error) {
		sent = true
		return nil, nil
	}

	values := fmt.Sprintf(`{%q: {%q: {"type": "plain_text_input", "value": "   "}}}`,
		feedbackMessageBlockID, feedbackMessageAction)

	h := newTestHandler(deps)
	w := httptest.NewRecorder()
	h.HandleInteraction(w, interactionRequest(viewSubmissionPayload(callbackFeedbackSubmission, stateToken, values)))

	var resp struct {
		ResponseAction string            `json:"response_action"`
		Errors         map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("応答のデコードに失敗: %v", err)
	}
	if resp.ResponseAction != "errors" {
		t.Errorf("response_action = %q, want errors", resp.ResponseAction)
	}
	if sent {
		t.Error("空メッセージで保存が実行された")
	}
}

func TestExtractAnswers_SkipsNonAnswerInputs(t *testing.T) {
	state := chatops.PayloadViewState{
		Values: map[string]map[string]chatops.PayloadInputValue{
			"q1":    {"answer_q1": {Type: "plain_text_input", Value: "text answer"}},
			"other": {"unrelated": {Type: "plain_text_input", Value: "ignored"}},
			"q4":    {"answer_q4": {Type: "plain_text_input", Value: ""}},
		},
	}
	answers := extractAnswers(state)
	if len(answers) != 1 {
		t.Fatalf("回答数 = %d, want 1", len(answers))
	}
	if answers[0].QuestionID != "q1" || answers[0].Text != "text answer" {
		t.Errorf("answers[0] = %+v", answers[0])
	}
}

func TestExtractAnswers_ClassifiesByElementType(t *testing.T) {
	state := chatops.PayloadViewState{
		Values: map[string]map[string]chatops.PayloadInputValue{
			// 数字だけの記述回答は評価として扱わない
			"q2": {"answer_q2": {Type: "plain_text_input", Value: "3"}},
			"q1": {"answer_q1": {Type: "static_select", SelectedOption: &chatops.PayloadOption{Value: "3"}}},
		},
	}
	answers := extractAnswers(state)
	if len(answers) != 2 {
		t.Fatalf("回答数 = %d, want 2", len(answers))
	}
	byQuestion := make(map[string]participant.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	if a := byQuestion["q2"]; a.Rating != nil || a.Text != "3" {
		t.Errorf("q2 = %+v, want Text \"3\"", a)
	}
	if a := byQuestion["q1"]; a.Rating == nil || *a.Rating != 3 || a.Text != "" {
		t.Errorf("q1 = %+v, want Rating 3", a)
	}
}
