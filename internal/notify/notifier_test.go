package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// mockWorkspaceRepo はWorkspaceRepositoryのテスト用モック。
type mockWorkspaceRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.Workspace, error)
	findByTeamIDFn   func(ctx context.Context, teamID string) (*model.Workspace, error)
	upsertFn         func(ctx context.Context, ws *model.Workspace) (*model.Workspace, error)
	listAllFn        func(ctx context.Context) ([]*model.Workspace, error)
	deleteByTeamIDFn func(ctx context.Context, teamID string) error
}

func (m *mockWorkspaceRepo) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockWorkspaceRepo) FindByTeamID(ctx context.Context, teamID string) (*model.Workspace, error) {
	return m.findByTeamIDFn(ctx, teamID)
}

func (m *mockWorkspaceRepo) Upsert(ctx context.Context, ws *model.Workspace) (*model.Workspace, error) {
	return m.upsertFn(ctx, ws)
}

func (m *mockWorkspaceRepo) ListAll(ctx context.Context) ([]*model.Workspace, error) {
	return m.listAllFn(ctx)
}

func (m *mockWorkspaceRepo) DeleteByTeamID(ctx context.Context, teamID string) error {
	return m.deleteByTeamIDFn(ctx, teamID)
}

// mockPersonRepo はPersonRepositoryのテスト用モック。
type mockPersonRepo struct {
	findByIDFn                  func(ctx context.Context, id string) (*model.Person, error)
	findByWorkspaceAndSlackIDFn func(ctx context.Context, workspaceID, slackUserID string) (*model.Person, error)
	getOrCreateFn               func(ctx context.Context, person *model.Person) (*model.Person, error)
	updateProfileFn             func(ctx context.Context, id, name, email, role string) error
}

func (m *mockPersonRepo) FindByID(ctx context.Context, id string) (*model.Person, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockPersonRepo) FindByWorkspaceAndSlackID(ctx context.Context, workspaceID, slackUserID string) (*model.Person, error) {
	return m.findByWorkspaceAndSlackIDFn(ctx, workspaceID, slackUserID)
}

func (m *mockPersonRepo) GetOrCreate(ctx context.Context, person *model.Person) (*model.Person, error) {
	return m.getOrCreateFn(ctx, person)
}

func (m *mockPersonRepo) UpdateProfile(ctx context.Context, id, name, email, role string) error {
	return m.updateProfileFn(ctx, id, name, email, role)
}

// 3人のPerson（対象者、マネージャー、ピア）を返すモックリポジトリ一式。
func notifierFixtures() (*mockWorkspaceRepo, *mockPersonRepo) {
	persons := map[string]*model.Person{
		"person-subject":  {ID: "person-subject", WorkspaceID: "ws-1", SlackUserID: "U-SUBJECT", Name: "Eve"},
		"person-manager":  {ID: "person-manager", WorkspaceID: "ws-1", SlackUserID: "U-MANAGER", Name: "Mallory"},
		"person-reviewer": {ID: "person-reviewer", WorkspaceID: "ws-1", SlackUserID: "U-REVIEWER", Name: "Bob"},
	}
	wsRepo := &mockWorkspaceRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Workspace, error) {
			return &model.Workspace{ID: "ws-1", TeamID: "T123", BotToken: "xoxb-test"}, nil
		},
	}
	personRepo := &mockPersonRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Person, error) {
			return persons[id], nil
		},
	}
	return wsRepo, personRepo
}

// capturedMessage はhttptestサーバーが受け取ったchat.postMessageリクエスト。
type capturedMessage struct {
	Channel string           `json:"channel"`
	Text    string           `json:"text"`
	Blocks  []map[string]any `json:"blocks"`
}

func newNotifierTestServer(t *testing.T) (*httptest.Server, *[]capturedMessage) {
	t.Helper()
	var messages []capturedMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg capturedMessage
		json.NewDecoder(r.Body).Decode(&msg)
		messages = append(messages, msg)
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &messages
}

func newTestNotifier(baseURL string, wsRepo *mockWorkspaceRepo, personRepo *mockPersonRepo) *Notifier {
	client := newTestClient(baseURL)
	return NewNotifier(client, wsRepo, personRepo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendReviewRequest_PeerRole(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1", SubjectID: "person-subject"}
	p := &model.Participant{ID: "p-1", CycleID: "cycle-1", ReviewerID: "person-reviewer", Role: model.RolePeer}

	if err := n.SendReviewRequest(context.Background(), cycle, p); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(*messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(*messages))
	}
	msg := (*messages)[0]
	if msg.Channel != "U-REVIEWER" {
		t.Errorf("channel = %q, want reviewer DM U-REVIEWER", msg.Channel)
	}
	if !strings.Contains(msg.Text, "U-SUBJECT") {
		t.Errorf("text = %q, want to mention the subject", msg.Text)
	}
	if !strings.Contains(msg.Text, "ピアレビュー") {
		t.Errorf("text = %q, want peer review wording", msg.Text)
	}
}

func TestSendReviewRequest_SelfRole_NoSubjectMention(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1", SubjectID: "person-subject"}
	p := &model.Participant{ID: "p-1", CycleID: "cycle-1", ReviewerID: "person-subject", Role: model.RoleSelf}

	if err := n.SendReviewRequest(context.Background(), cycle, p); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if !strings.Contains(msg.Text, "セルフレビュー") {
		t.Errorf("text = %q, want self review wording", msg.Text)
	}
	if strings.Contains(msg.Text, "U-SUBJECT") {
		t.Errorf("self review request should not mention the subject, got %q", msg.Text)
	}
}

func TestSendReviewRequest_IncludesStartButtonAndDueDate(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	cycle := &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1", SubjectID: "person-subject", DueDate: &due}
	p := &model.Participant{ID: "p-42", CycleID: "cycle-1", ReviewerID: "person-reviewer", Role: model.RolePeer}

	if err := n.SendReviewRequest(context.Background(), cycle, p); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	raw, _ := json.Marshal(msg.Blocks)
	if !strings.Contains(string(raw), `"value":"p-42"`) {
		t.Errorf("blocks should carry the participant ID as button value: %s", raw)
	}
	if !strings.Contains(string(raw), "2026-10-01") {
		t.Errorf("blocks should include the due date: %s", raw)
	}
}

func TestSendReviewRequest_DeliveryFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer ts.Close()
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1", SubjectID: "person-subject"}
	p := &model.Participant{ID: "p-1", CycleID: "cycle-1", ReviewerID: "person-reviewer", Role: model.RolePeer}

	err := n.SendReviewRequest(context.Background(), cycle, p)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDeliveryFailed {
		t.Fatalf("expected DELIVERY_FAILED, got %v", err)
	}
}

func TestSendReminder_MentionsPendingReview(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{ID: "cycle-1", WorkspaceID: "ws-1", SubjectID: "person-subject"}
	p := &model.Participant{ID: "p-1", CycleID: "cycle-1", ReviewerID: "person-reviewer", Role: model.RolePeer}

	if err := n.SendReminder(context.Background(), cycle, p); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if !strings.Contains(msg.Text, "リマインダー") {
		t.Errorf("text = %q, want reminder wording", msg.Text)
	}
	if !strings.Contains(msg.Text, "U-SUBJECT") {
		t.Errorf("text = %q, want to mention the subject", msg.Text)
	}
}

func TestNotifyCycleCompleted_ToSubject(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{
		ID:          "cycle-1",
		WorkspaceID: "ws-1",
		SubjectID:   "person-subject",
		Summary:     "全体として高い評価でした。",
	}

	if err := n.NotifyCycleCompleted(context.Background(), cycle, "person-subject"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if msg.Channel != "U-SUBJECT" {
		t.Errorf("channel = %q, want U-SUBJECT", msg.Channel)
	}
	if !strings.Contains(msg.Text, "あなたのレビューサイクル") {
		t.Errorf("text = %q, want second-person wording for the subject", msg.Text)
	}
	raw, _ := json.Marshal(msg.Blocks)
	if !strings.Contains(string(raw), "全体として高い評価でした。") {
		t.Errorf("blocks should include the summary: %s", raw)
	}
}

func TestNotifyCycleCompleted_ToManager(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	cycle := &model.ReviewCycle{
		ID:          "cycle-1",
		WorkspaceID: "ws-1",
		SubjectID:   "person-subject",
		ManagerID:   "person-manager",
		Summary:     "summary",
	}

	if err := n.NotifyCycleCompleted(context.Background(), cycle, "person-manager"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if msg.Channel != "U-MANAGER" {
		t.Errorf("channel = %q, want U-MANAGER", msg.Channel)
	}
	if !strings.Contains(msg.Text, "U-SUBJECT") {
		t.Errorf("text = %q, want to name the subject for the manager", msg.Text)
	}
}

func TestSendFeedbackReceived_NamedSender(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	fb := &model.ContinuousFeedback{
		ID:           "fb-1",
		WorkspaceID:  "ws-1",
		FromPersonID: "person-reviewer",
		ToPersonID:   "person-subject",
		Message:      "良い仕事でした",
		Kind:         model.FeedbackKindPraise,
	}

	if err := n.SendFeedbackReceived(context.Background(), fb); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if !strings.Contains(msg.Text, "U-REVIEWER") {
		t.Errorf("text = %q, want to mention the sender", msg.Text)
	}
	raw, _ := json.Marshal(msg.Blocks)
	if !strings.Contains(string(raw), "称賛") {
		t.Errorf("blocks should include the kind label: %s", raw)
	}
}

func TestSendFeedbackReceived_Anonymous_HidesSender(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	fb := &model.ContinuousFeedback{
		ID:          "fb-1",
		WorkspaceID: "ws-1",
		ToPersonID:  "person-subject",
		Message:     "匿名の意見です",
		Kind:        model.FeedbackKindImprovement,
		Anonymous:   true,
	}

	if err := n.SendFeedbackReceived(context.Background(), fb); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if !strings.Contains(msg.Text, "匿名のメンバー") {
		t.Errorf("text = %q, want anonymous sender wording", msg.Text)
	}
	if strings.Contains(msg.Text, "U-REVIEWER") {
		t.Errorf("anonymous feedback must not reveal the sender, got %q", msg.Text)
	}
}

func TestSendSubmissionThanks(t *testing.T) {
	ts, messages := newNotifierTestServer(t)
	wsRepo, personRepo := notifierFixtures()
	n := newTestNotifier(ts.URL, wsRepo, personRepo)

	if err := n.SendSubmissionThanks(context.Background(), "ws-1", "person-reviewer"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := (*messages)[0]
	if msg.Channel != "U-REVIEWER" {
		t.Errorf("channel = %q, want U-REVIEWER", msg.Channel)
	}
	if !strings.Contains(msg.Text, "ありがとうございました") {
		t.Errorf("text = %q, want thanks wording", msg.Text)
	}
}
