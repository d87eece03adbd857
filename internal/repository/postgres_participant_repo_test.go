package repository

import (
	"testing"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresParticipantRepoはParticipantRepositoryインターフェースを満たすことを検証
func TestPostgresParticipantRepo_ImplementsInterface(t *testing.T) {
	var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)
}

// NewPostgresParticipantRepoが正しく初期化されることを検証
func TestNewPostgresParticipantRepo_Initializes(t *testing.T) {
	repo := NewPostgresParticipantRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Participantモデルのフィールドが正しく構築されることを検証
func TestPostgresParticipantRepo_ParticipantModel_Fields(t *testing.T) {
	now := time.Now()
	p := &model.Participant{
		ID:         "p-id-1",
		CycleID:    "cycle-id-1",
		ReviewerID: "person-reviewer",
		Role:       model.RolePeer,
		Status:     model.ParticipantStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if p.ID != "p-id-1" {
		t.Errorf("p.ID = %q, want %q", p.ID, "p-id-1")
	}
	if p.Role != model.RolePeer {
		t.Errorf("p.Role = %q, want %q", p.Role, model.RolePeer)
	}
	if p.Status != model.ParticipantStatusPending {
		t.Errorf("p.Status = %q, want %q", p.Status, model.ParticipantStatusPending)
	}
}

// 未完了参加者の時刻フィールドがnil許容であることを検証
func TestPostgresParticipantRepo_ParticipantModel_NilTimestamps(t *testing.T) {
	p := &model.Participant{
		ID:         "p-id-2",
		CycleID:    "cycle-id-1",
		ReviewerID: "person-reviewer",
		Role:       model.RoleSelf,
		Status:     model.ParticipantStatusInProgress,
	}

	if p.CompletedAt != nil {
		t.Error("completed_at should be nil before completion")
	}
	if p.ReminderSentAt != nil {
		t.Error("reminder_sent_at should be nil before the first reminder")
	}
}

// FeedbackResponseモデルのフィールドが正しく構築されることを検証
func TestPostgresFeedbackResponseRepo_ResponseModel_Fields(t *testing.T) {
	rating := 4
	resp := &model.FeedbackResponse{
		ID:            "resp-id-1",
		ParticipantID: "p-id-1",
		CycleID:       "cycle-id-1",
		QuestionID:    "q1",
		QuestionText:  "Overall Performance",
		Rating:        &rating,
	}

	if resp.QuestionID != "q1" {
		t.Errorf("resp.QuestionID = %q, want %q", resp.QuestionID, "q1")
	}
	if resp.QuestionText != "Overall Performance" {
		t.Errorf("resp.QuestionText = %q, want %q", resp.QuestionText, "Overall Performance")
	}
	if resp.Rating == nil || *resp.Rating != 4 {
		t.Errorf("resp.Rating = %v, want 4", resp.Rating)
	}
	if resp.Response != "" {
		t.Error("response text should be empty for rating-only answers")
	}
}

// FeedbackResponseRepositoryとContinuousFeedbackRepositoryの実装を検証
func TestPostgresFeedbackRepos_ImplementInterfaces(t *testing.T) {
	var _ FeedbackResponseRepository = (*PostgresFeedbackResponseRepo)(nil)
	var _ ContinuousFeedbackRepository = (*PostgresContinuousFeedbackRepo)(nil)
}
