// Package template はレビューテンプレートの解決と管理を提供する。
package template

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// Service はテンプレート管理のサービス層。
// テンプレートは不変として扱い、編集は新バージョンの作成となる。
type Service struct {
	repo repository.TemplateRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TemplateRepository) *Service {
	return &Service{repo: repo}
}

// Resolve はサイクルで使用するテンプレートを決定する。
// 優先順位: 明示ID → 名前指定（最新バージョン） → ワークスペースのデフォルト →
// 組み込みフォールバック。明示指定が見つからない場合はTEMPLATE_NOT_FOUNDを返し、
// フォールバックしない（指定ミスを黙って握り潰さない）。
func (s *Service) Resolve(ctx context.Context, workspaceID, templateID, templateName string) (*model.Template, error) {
	if templateID != "" {
		tmpl, err := s.repo.FindByID(ctx, templateID)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, model.NewTemplateNotFoundError(templateID)
		}
		return tmpl, nil
	}

	if templateName != "" {
		tmpl, err := s.repo.FindLatestByName(ctx, workspaceID, templateName)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, model.NewTemplateNotFoundError(templateName)
		}
		return tmpl, nil
	}

	tmpl, err := s.repo.FindDefault(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return model.BuiltinTemplate(), nil
	}
	return tmpl, nil
}

// ResolveForCycle はサイクルが参照するテンプレートを取得する。
// TemplateIDが空（組み込みテンプレートで作成されたサイクル）の場合は
// 組み込みテンプレートを返す。
func (s *Service) ResolveForCycle(ctx context.Context, cycle *model.ReviewCycle) (*model.Template, error) {
	if cycle.TemplateID == "" {
		return model.BuiltinTemplate(), nil
	}
	tmpl, err := s.repo.FindByID(ctx, cycle.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, model.NewTemplateNotFoundError(cycle.TemplateID)
	}
	return tmpl, nil
}

// Create はテンプレートを作成する。同名テンプレートが存在する場合は
// 次のバージョン番号で新しい行を挿入し、既存行は変更しない。
func (s *Service) Create(ctx context.Context, workspaceID, name string, questions []model.Question, createdBy string, isDefault bool) (*model.Template, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("テンプレートには少なくとも1つの設問が必要です")
	}

	version := 1
	latest, err := s.repo.FindLatestByName(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		version = latest.Version + 1
	}

	tmpl := &model.Template{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        name,
		Version:     version,
		IsDefault:   isDefault,
		Questions:   questions,
		CreatedBy:   createdBy,
	}
	if err := s.repo.Create(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// List はワークスペースのテンプレート一覧を返す。
func (s *Service) List(ctx context.Context, workspaceID string) ([]*model.Template, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID)
}
