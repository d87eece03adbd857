package chatops

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateTokenTTL は状態トークンの有効期間。
// モーダルの表示から提出までの想定時間より十分長く取る。
const stateTokenTTL = 30 * time.Minute

// ReviewState はレビューモーダルのprivate_metadataに埋め込む状態。
type ReviewState struct {
	ParticipantID string
	CycleID       string
}

// FeedbackState はフィードバックモーダルのprivate_metadataに埋め込む状態。
type FeedbackState struct {
	RecipientPersonID string
}

// stateClaims は状態トークンのJWTクレーム。
// Subjectにはトークン種別（review または feedback）を設定する。
type stateClaims struct {
	jwt.RegisteredClaims
	ParticipantID     string `json:"pid,omitempty"`
	CycleID           string `json:"cid,omitempty"`
	RecipientPersonID string `json:"rid,omitempty"`
}

const (
	stateSubjectReview   = "review"
	stateSubjectFeedback = "feedback"
)

// StateTokens はモーダル状態トークンの発行と検証を行う。
// private_metadataはクライアント経由で往復するため、
// 改ざん防止のためHMAC-SHA256で署名されたJWTとして運ぶ。
type StateTokens struct {
	secret []byte
	now    func() time.Time // テスト用に差し替え可能
}

// NewStateTokens はStateTokensの新しいインスタンスを生成する。
func NewStateTokens(secret string) *StateTokens {
	return &StateTokens{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// IssueReviewState はレビューモーダル用の状態トークンを発行する。
func (s *StateTokens) IssueReviewState(state ReviewState) (string, error) {
	now := s.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   stateSubjectReview,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenTTL)),
		},
		ParticipantID: state.ParticipantID,
		CycleID:       state.CycleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("状態トークンの署名に失敗しました: %w", err)
	}
	return signed, nil
}

// ParseReviewState はレビューモーダルの状態トークンを検証して復元する。
func (s *StateTokens) ParseReviewState(token string) (*ReviewState, error) {
	claims, err := s.parse(token, stateSubjectReview)
	if err != nil {
		return nil, err
	}
	if claims.ParticipantID == "" || claims.CycleID == "" {
		return nil, errors.New("状態トークンに必要なクレームがありません")
	}
	return &ReviewState{
		ParticipantID: claims.ParticipantID,
		CycleID:       claims.CycleID,
	}, nil
}

// IssueFeedbackState はフィードバックモーダル用の状態トークンを発行する。
func (s *StateTokens) IssueFeedbackState(state FeedbackState) (string, error) {
	now := s.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   stateSubjectFeedback,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenTTL)),
		},
		RecipientPersonID: state.RecipientPersonID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("状態トークンの署名に失敗しました: %w", err)
	}
	return signed, nil
}

// ParseFeedbackState はフィードバックモーダルの状態トークンを検証して復元する。
func (s *StateTokens) ParseFeedbackState(token string) (*FeedbackState, error) {
	claims, err := s.parse(token, stateSubjectFeedback)
	if err != nil {
		return nil, err
	}
	if claims.RecipientPersonID == "" {
		return nil, errors.New("状態トークンに必要なクレームがありません")
	}
	return &FeedbackState{RecipientPersonID: claims.RecipientPersonID}, nil
}

// parse はトークンを検証し、Subjectが期待する種別であることを確認する。
func (s *StateTokens) parse(token, wantSubject string) (*stateClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &stateClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("状態トークンの検証に失敗しました: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("状態トークンが無効です")
	}
	if claims.Subject != wantSubject {
		return nil, fmt.Errorf("状態トークンの種別が一致しません: %s", claims.Subject)
	}
	return claims, nil
}
