package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// mockCycleRepo はCycleRepositoryのテスト用モック。
type mockCycleRepo struct {
	createFn                    func(ctx context.Context, cycle *model.ReviewCycle) error
	findByIDFn                  func(ctx context.Context, id string) (*model.ReviewCycle, error)
	markInProgressFn            func(ctx context.Context, id string) error
	completeIfNotCompletedFn    func(ctx context.Context, id, summary string) (bool, error)
	listByWorkspaceAndSubjectFn func(ctx context.Context, workspaceID, subjectID string) ([]*model.ReviewCycle, error)
}

func (m *mockCycleRepo) Create(ctx context.Context, cycle *model.ReviewCycle) error {
	return m.createFn(ctx, cycle)
}

func (m *mockCycleRepo) FindByID(ctx context.Context, id string) (*model.ReviewCycle, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockCycleRepo) MarkInProgress(ctx context.Context, id string) error {
	return m.markInProgressFn(ctx, id)
}

func (m *mockCycleRepo) CompleteIfNotCompleted(ctx context.Context, id, summary string) (bool, error) {
	return m.completeIfNotCompletedFn(ctx, id, summary)
}

func (m *mockCycleRepo) ListByWorkspaceAndSubject(ctx context.Context, workspaceID, subjectID string) ([]*model.ReviewCycle, error) {
	return m.listByWorkspaceAndSubjectFn(ctx, workspaceID, subjectID)
}

// mockParticipantRepo はParticipantRepositoryのテスト用モック。
// Aggregatorが使うのはListByCycleのみだが、インターフェースを満たすため全メソッドを持つ。
type mockParticipantRepo struct {
	createFn                 func(ctx context.Context, p *model.Participant) error
	findByIDFn               func(ctx context.Context, id string) (*model.Participant, error)
	findByCycleAndReviewerFn func(ctx context.Context, cycleID, reviewerID string) (*model.Participant, error)
	listByCycleFn            func(ctx context.Context, cycleID string) ([]*model.Participant, error)
	updateStatusFn           func(ctx context.Context, id string, status model.ParticipantStatus, completedAt *time.Time) error
	touchReminderFn          func(ctx context.Context, id string, at time.Time) error
	listDueForReminderFn     func(ctx context.Context, workspaceID string, cutoff time.Time) ([]*model.Participant, error)
	listPendingByReviewerFn  func(ctx context.Context, workspaceID, reviewerID string) ([]*model.Participant, error)
}

func (m *mockParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	return m.createFn(ctx, p)
}

func (m *mockParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockParticipantRepo) FindByCycleAndReviewer(ctx context.Context, cycleID, reviewerID string) (*model.Participant, error) {
	return m.findByCycleAndReviewerFn(ctx, cycleID, reviewerID)
}

func (m *mockParticipantRepo) ListByCycle(ctx context.Context, cycleID string) ([]*model.Participant, error) {
	return m.listByCycleFn(ctx, cycleID)
}

func (m *mockParticipantRepo) UpdateStatus(ctx context.Context, id string, status model.ParticipantStatus, completedAt *time.Time) error {
	return m.updateStatusFn(ctx, id, status, completedAt)
}

func (m *mockParticipantRepo) TouchReminder(ctx context.Context, id string, at time.Time) error {
	return m.touchReminderFn(ctx, id, at)
}

func (m *mockParticipantRepo) ListDueForReminder(ctx context.Context, workspaceID string, cutoff time.Time) ([]*model.Participant, error) {
	return m.listDueForReminderFn(ctx, workspaceID, cutoff)
}

func (m *mockParticipantRepo) ListPendingByReviewer(ctx context.Context, workspaceID, reviewerID string) ([]*model.Participant, error) {
	return m.listPendingByReviewerFn(ctx, workspaceID, reviewerID)
}

// mockSummarizer はSummaryGeneratorのテスト用モック。
type mockSummarizer struct {
	generateFn func(ctx context.Context, cycleID string) (string, error)
}

func (m *mockSummarizer) Generate(ctx context.Context, cycleID string) (string, error) {
	return m.generateFn(ctx, cycleID)
}

// mockNotifier はCompletionNotifierのテスト用モック。
type mockNotifier struct {
	notifyFn func(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error
}

func (m *mockNotifier) NotifyCycleCompleted(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
	return m.notifyFn(ctx, cycle, recipientID)
}

// mockMetrics はMetricsRecorderのテスト用モック。呼び出し回数を数える。
type mockMetrics struct {
	cycleCompleted      int
	summaryFallback     int
	notificationSent    int
	notificationFailure int
}

func (m *mockMetrics) RecordCycleCompleted()      { m.cycleCompleted++ }
func (m *mockMetrics) RecordSummaryFallback()     { m.summaryFallback++ }
func (m *mockMetrics) RecordNotificationSent()    { m.notificationSent++ }
func (m *mockMetrics) RecordNotificationFailure() { m.notificationFailure++ }

func completedParticipants(n int) []*model.Participant {
	ps := make([]*model.Participant, n)
	for i := range ps {
		ps[i] = &model.Participant{
			ID:      "p-" + string(rune('1'+i)),
			CycleID: "cycle-1",
			Status:  model.ParticipantStatusCompleted,
		}
	}
	return ps
}

func testCycle() *model.ReviewCycle {
	return &model.ReviewCycle{
		ID:          "cycle-1",
		WorkspaceID: "ws-1",
		SubjectID:   "person-subject",
		ManagerID:   "person-manager",
		Status:      model.CycleStatusCompleted,
	}
}

func newTestAggregator(cycles *mockCycleRepo, parts *mockParticipantRepo, sum *mockSummarizer, n *mockNotifier, metrics *mockMetrics) *Aggregator {
	return NewAggregator(cycles, parts, sum, n, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIsCycleComplete_AllCompleted(t *testing.T) {
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(3), nil
		},
	}
	agg := newTestAggregator(&mockCycleRepo{}, parts, &mockSummarizer{}, &mockNotifier{}, &mockMetrics{})

	complete, err := agg.IsCycleComplete(context.Background(), "cycle-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !complete {
		t.Error("expected cycle to be complete")
	}
}

func TestIsCycleComplete_OneStillPending(t *testing.T) {
	ps := completedParticipants(3)
	ps[1].Status = model.ParticipantStatusPending
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return ps, nil
		},
	}
	agg := newTestAggregator(&mockCycleRepo{}, parts, &mockSummarizer{}, &mockNotifier{}, &mockMetrics{})

	complete, err := agg.IsCycleComplete(context.Background(), "cycle-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if complete {
		t.Error("expected cycle to be incomplete")
	}
}

func TestIsCycleComplete_NoParticipants_NeverComplete(t *testing.T) {
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return nil, nil
		},
	}
	agg := newTestAggregator(&mockCycleRepo{}, parts, &mockSummarizer{}, &mockNotifier{}, &mockMetrics{})

	complete, err := agg.IsCycleComplete(context.Background(), "cycle-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if complete {
		t.Error("cycle without participants must not be complete")
	}
}

func TestOnParticipantCompleted_CompletesAndNotifies(t *testing.T) {
	var gotSummary string
	var recipients []string
	metrics := &mockMetrics{}
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			gotSummary = summary
			return true, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.ReviewCycle, error) {
			return testCycle(), nil
		},
	}
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(2), nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			return "全体として高評価でした。", nil
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
			recipients = append(recipients, recipientID)
			return nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, notifier, metrics)

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotSummary != "全体として高評価でした。" {
		t.Errorf("summary = %q, want generated summary", gotSummary)
	}
	if len(recipients) != 2 {
		t.Fatalf("recipients = %v, want subject and manager", recipients)
	}
	if recipients[0] != "person-subject" || recipients[1] != "person-manager" {
		t.Errorf("recipients = %v, want [person-subject person-manager]", recipients)
	}
	if metrics.cycleCompleted != 1 {
		t.Errorf("cycleCompleted = %d, want 1", metrics.cycleCompleted)
	}
	if metrics.notificationSent != 2 {
		t.Errorf("notificationSent = %d, want 2", metrics.notificationSent)
	}
	if metrics.summaryFallback != 0 {
		t.Errorf("summaryFallback = %d, want 0", metrics.summaryFallback)
	}
}

func TestOnParticipantCompleted_NotAllCompleted_NoSideEffects(t *testing.T) {
	ps := completedParticipants(2)
	ps[0].Status = model.ParticipantStatusInProgress
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return ps, nil
		},
	}
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			t.Fatal("CompleteIfNotCompleted should not be called")
			return false, nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			t.Fatal("Generate should not be called")
			return "", nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, &mockNotifier{}, &mockMetrics{})

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestOnParticipantCompleted_SummaryFailure_FallsBackToPlaceholder(t *testing.T) {
	var gotSummary string
	metrics := &mockMetrics{}
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			gotSummary = summary
			return true, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.ReviewCycle, error) {
			return testCycle(), nil
		},
	}
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(1), nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			return "", errors.New("api unavailable")
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
			return nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, notifier, metrics)

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("summary failure must not fail completion, got %v", err)
	}

	if gotSummary != PlaceholderSummary {
		t.Errorf("summary = %q, want placeholder", gotSummary)
	}
	if metrics.summaryFallback != 1 {
		t.Errorf("summaryFallback = %d, want 1", metrics.summaryFallback)
	}
	if metrics.cycleCompleted != 1 {
		t.Errorf("cycleCompleted = %d, want 1", metrics.cycleCompleted)
	}
}

func TestOnParticipantCompleted_LostRace_NoSideEffects(t *testing.T) {
	metrics := &mockMetrics{}
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			return false, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.ReviewCycle, error) {
			t.Fatal("FindByID should not be called after losing the completion race")
			return nil, nil
		},
	}
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(2), nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			return "summary", nil
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
			t.Fatal("notification should not be sent by the losing caller")
			return nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, notifier, metrics)

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if metrics.cycleCompleted != 0 {
		t.Errorf("cycleCompleted = %d, want 0", metrics.cycleCompleted)
	}
}

func TestOnParticipantCompleted_ManagerSameAsSubject_SingleNotification(t *testing.T) {
	var recipients []string
	cycle := testCycle()
	cycle.ManagerID = cycle.SubjectID
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			return true, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.ReviewCycle, error) {
			return cycle, nil
		},
	}
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(1), nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			return "summary", nil
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, c *model.ReviewCycle, recipientID string) error {
			recipients = append(recipients, recipientID)
			return nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, notifier, &mockMetrics{})

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "person-subject" {
		t.Errorf("recipients = %v, want single subject notification", recipients)
	}
}

func TestOnParticipantCompleted_NotificationFailure_ContinuesRemaining(t *testing.T) {
	var recipients []string
	metrics := &mockMetrics{}
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			return true, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.ReviewCycle, error) {
			return testCycle(), nil
		},
	}
	parts := &mockParticipantRepo{
		listByCycleFn: func(ctx context.Context, cycleID string) ([]*model.Participant, error) {
			return completedParticipants(1), nil
		},
	}
	sum := &mockSummarizer{
		generateFn: func(ctx context.Context, cycleID string) (string, error) {
			return "summary", nil
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error {
			recipients = append(recipients, recipientID)
			if recipientID == "person-subject" {
				return errors.New("channel_not_found")
			}
			return nil
		},
	}
	agg := newTestAggregator(cycles, parts, sum, notifier, metrics)

	if err := agg.OnParticipantCompleted(context.Background(), "cycle-1"); err != nil {
		t.Fatalf("notification failure must not fail completion, got %v", err)
	}
	if len(recipients) != 2 {
		t.Errorf("recipients = %v, want both attempted", recipients)
	}
	if metrics.notificationFailure != 1 {
		t.Errorf("notificationFailure = %d, want 1", metrics.notificationFailure)
	}
	if metrics.notificationSent != 1 {
		t.Errorf("notificationSent = %d, want 1", metrics.notificationSent)
	}
}

func TestCompleteCycle_AlreadyCompleted(t *testing.T) {
	cycles := &mockCycleRepo{
		completeIfNotCompletedFn: func(ctx context.Context, id, summary string) (bool, error) {
			return false, nil
		},
	}
	agg := newTestAggregator(cycles, &mockParticipantRepo{}, &mockSummarizer{}, &mockNotifier{}, &mockMetrics{})

	_, err := agg.CompleteCycle(context.Background(), "cycle-1", "summary")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyCompleted {
		t.Fatalf("expected ALREADY_COMPLETED, got %v", err)
	}
}
