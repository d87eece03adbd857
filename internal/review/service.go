// Package review はレビューサイクルのオーケストレーションを提供する。
// サイクルと参加者集合の作成、および回答提出から完了判定までの
// パイプラインのエントリポイントとなる。
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/participant"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// TemplateResolver はサイクル作成・回答検証で使用するテンプレート解決インターフェース。
type TemplateResolver interface {
	Resolve(ctx context.Context, workspaceID, templateID, templateName string) (*model.Template, error)
	ResolveForCycle(ctx context.Context, cycle *model.ReviewCycle) (*model.Template, error)
}

// ParticipantTracker は参加者の回答記録とステータス遷移のインターフェース。
type ParticipantTracker interface {
	RecordResponses(ctx context.Context, participantID string, tmpl *model.Template, answers []participant.Answer) error
	MarkStatus(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error)
}

// CompletionChecker は参加者完了イベントの集約処理インターフェース。
type CompletionChecker interface {
	OnParticipantCompleted(ctx context.Context, cycleID string) error
}

// Service はレビューサイクルのオーケストレーター。
type Service struct {
	cycleRepo repository.CycleRepository
	partRepo  repository.ParticipantRepository
	templates TemplateResolver
	tracker   ParticipantTracker
	checker   CompletionChecker
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	cycleRepo repository.CycleRepository,
	partRepo repository.ParticipantRepository,
	templates TemplateResolver,
	tracker ParticipantTracker,
	checker CompletionChecker,
	logger *slog.Logger,
) *Service {
	return &Service{
		cycleRepo: cycleRepo,
		partRepo:  partRepo,
		templates: templates,
		tracker:   tracker,
		checker:   checker,
		logger:    logger,
	}
}

// InitiateCycleParams はサイクル作成のパラメータ。
// 各IDはPersonの内部IDを指定する（外部ユーザーIDの解決は呼び出し側が行う）。
type InitiateCycleParams struct {
	WorkspaceID  string
	SubjectID    string
	ManagerID    string // 空の場合はマネージャーレビューなし
	PeerIDs      []string
	TemplateID   string // 明示指定。空の場合はTemplateName → デフォルト → 組み込みの順
	TemplateName string
	DueDate      *time.Time
	CreatedBy    string
}

// CycleAggregate はサイクル作成結果の集約。呼び出し側はこれを使って
// 各参加者へレビュー依頼を通知する。
type CycleAggregate struct {
	Cycle        *model.ReviewCycle
	Participants []*model.Participant
	Template     *model.Template
}

// InitiateCycle はレビューサイクルを参加者集合とともに作成する。
// 参加者はレビュアー1人につき1件しか作られない: 対象者のselfは常に作成し、
// マネージャー指定があればmanagerを、ピアは重複を除いた1人ごとにpeerを作成する。
// 同一人物が複数ロールに該当する場合は先に割り当てたロールが優先される
// （self > manager > peer）。
func (s *Service) InitiateCycle(ctx context.Context, params InitiateCycleParams) (*CycleAggregate, error) {
	tmpl, err := s.templates.Resolve(ctx, params.WorkspaceID, params.TemplateID, params.TemplateName)
	if err != nil {
		return nil, err
	}

	cycle := &model.ReviewCycle{
		ID:          uuid.NewString(),
		WorkspaceID: params.WorkspaceID,
		SubjectID:   params.SubjectID,
		ManagerID:   params.ManagerID,
		TemplateID:  tmpl.ID, // 組み込みテンプレートの場合は空
		DueDate:     params.DueDate,
		CreatedBy:   params.CreatedBy,
		Status:      model.CycleStatusPending,
	}
	if err := s.cycleRepo.Create(ctx, cycle); err != nil {
		return nil, err
	}

	type assignment struct {
		reviewerID string
		role       model.ParticipantRole
	}
	assignments := []assignment{{params.SubjectID, model.RoleSelf}}
	if params.ManagerID != "" {
		assignments = append(assignments, assignment{params.ManagerID, model.RoleManager})
	}
	for _, peerID := range params.PeerIDs {
		assignments = append(assignments, assignment{peerID, model.RolePeer})
	}

	seen := make(map[string]bool, len(assignments))
	var participants []*model.Participant
	for _, asg := range assignments {
		if seen[asg.reviewerID] {
			continue
		}
		seen[asg.reviewerID] = true

		p := &model.Participant{
			ID:         uuid.NewString(),
			CycleID:    cycle.ID,
			ReviewerID: asg.reviewerID,
			Role:       asg.role,
			Status:     model.ParticipantStatusPending,
		}
		if err := s.partRepo.Create(ctx, p); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	s.logger.Info("レビューサイクルを作成しました",
		slog.String("cycle_id", cycle.ID),
		slog.String("workspace_id", cycle.WorkspaceID),
		slog.String("subject_id", cycle.SubjectID),
		slog.Int("participant_count", len(participants)),
	)

	return &CycleAggregate{Cycle: cycle, Participants: participants, Template: tmpl}, nil
}

// SubmissionResult は回答提出の処理結果。
type SubmissionResult struct {
	CycleID string
	// NewlyCompleted は今回の提出で参加者がcompletedへ遷移した場合にtrue。
	// 提出済み参加者の再提出（上書き）ではfalseになる。
	NewlyCompleted bool
}

// SubmitParticipantFeedback は1人のレビュアーの提出を処理する。
// 回答を記録し、参加者をcompletedへ遷移する。最初の提出でサイクルを
// in_progressへ遷移する（条件付きUPDATEのため2回目以降は何もしない）。
// 提出済み参加者の再提出は回答の上書きのみ行い、ステータス遷移と
// 完了判定は発生しない。
// サイクルの完了判定は行わない。呼び出し側が応答を返した後に
// CheckCycleCompletionを実行する。
func (s *Service) SubmitParticipantFeedback(ctx context.Context, participantID string, answers []participant.Answer) (*SubmissionResult, error) {
	p, err := s.partRepo.FindByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewParticipantNotFoundError(participantID)
	}

	cycle, err := s.cycleRepo.FindByID(ctx, p.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, model.NewCycleNotFoundError(p.CycleID)
	}

	tmpl, err := s.templates.ResolveForCycle(ctx, cycle)
	if err != nil {
		return nil, err
	}

	if err := s.tracker.RecordResponses(ctx, participantID, tmpl, answers); err != nil {
		return nil, err
	}

	if p.Status == model.ParticipantStatusCompleted {
		s.logger.Info("提出済み参加者の回答を上書きしました",
			slog.String("participant_id", p.ID),
			slog.String("cycle_id", cycle.ID),
		)
		return &SubmissionResult{CycleID: cycle.ID}, nil
	}

	if err := s.cycleRepo.MarkInProgress(ctx, cycle.ID); err != nil {
		return nil, err
	}

	if _, err := s.tracker.MarkStatus(ctx, participantID, model.ParticipantStatusCompleted); err != nil {
		return nil, err
	}

	return &SubmissionResult{CycleID: cycle.ID, NewlyCompleted: true}, nil
}

// CheckCycleCompletion はサイクルの完了判定を実行する。
// 全参加者が揃えばサマリー生成と完了通知まで進むため、
// 提出への応答を返した後のバックグラウンドで呼び出す。
func (s *Service) CheckCycleCompletion(ctx context.Context, cycleID string) error {
	return s.checker.OnParticipantCompleted(ctx, cycleID)
}

// PendingReview はレビュアーの未対応の回答義務とその対象サイクル。
type PendingReview struct {
	Participant *model.Participant
	Cycle       *model.ReviewCycle
}

// ListPendingReviews はレビュアーの未完了の回答義務一覧をサイクル情報付きで返す。
// アプリホームの表示で使用する。
func (s *Service) ListPendingReviews(ctx context.Context, workspaceID, reviewerID string) ([]PendingReview, error) {
	participants, err := s.partRepo.ListPendingByReviewer(ctx, workspaceID, reviewerID)
	if err != nil {
		return nil, err
	}

	reviews := make([]PendingReview, 0, len(participants))
	for _, p := range participants {
		cycle, err := s.cycleRepo.FindByID(ctx, p.CycleID)
		if err != nil {
			return nil, err
		}
		if cycle == nil || cycle.Status == model.CycleStatusCompleted {
			continue
		}
		reviews = append(reviews, PendingReview{Participant: p, Cycle: cycle})
	}
	return reviews, nil
}
