// Package summary はレビューサイクル完了時のサマリー生成機能を提供する。
// チャット補完APIを呼び出し、収集済みの回答から短い要約文を生成する。
// サマリー生成はベストエフォートであり、失敗してもサイクルの完了は妨げられない。
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// maxResponseChars はプロンプトに含める1回答あたりの最大文字数。
// 回答が長大な場合でもプロンプトサイズを抑えるために切り詰める。
const maxResponseChars = 2000

// systemPrompt はサマリー生成の指示文。
const systemPrompt = "You are an HR assistant. Summarize the following performance review responses " +
	"into a concise, constructive summary of 3-5 sentences. Highlight common themes, " +
	"strengths, and areas for improvement. Do not mention individual reviewers by name."

// Client はチャット補完APIのクライアント。
// APIキーが未設定の場合、Generateは常にエラーを返す。
type Client struct {
	httpClient *http.Client
	responses  repository.FeedbackResponseRepository
	logger     *slog.Logger
	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
	model      string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(
	httpClient *http.Client,
	responses repository.FeedbackResponseRepository,
	logger *slog.Logger,
	apiKey, baseURL, model string,
) *Client {
	return &Client{
		httpClient: httpClient,
		responses:  responses,
		logger:     logger,
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}
}

// chatRequest はチャット補完APIのリクエスト形式。
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse はチャット補完APIのレスポンス形式。
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate はサイクルの全回答からサマリー文を生成する。
// APIキー未設定、回答ゼロ件、API障害の場合はエラーを返す。
// 呼び出し側は失敗時に代替文を使用する。
func (c *Client) Generate(ctx context.Context, cycleID string) (string, error) {
	if c.apiKey == "" {
		return "", model.NewSummaryUnavailableError("APIキーが設定されていません")
	}

	responses, err := c.responses.ListByCycle(ctx, cycleID)
	if err != nil {
		return "", fmt.Errorf("回答の取得に失敗しました: %w", err)
	}
	if len(responses) == 0 {
		return "", model.NewSummaryUnavailableError("回答が存在しません")
	}

	prompt := buildPrompt(responses)

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("チャット補完APIの呼び出しに失敗しました",
			slog.String("cycle_id", cycleID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("チャット補完APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("チャット補完APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("cycle_id", cycleID),
		)
		return "", fmt.Errorf("チャット補完APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", model.NewSummaryUnavailableError("応答にchoicesが含まれていません")
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", model.NewSummaryUnavailableError("応答が空です")
	}
	return text, nil
}

// buildPrompt は回答一覧を設問ごとにグループ化してプロンプト本文を構築する。
// レビュアーの身元はプロンプトに含めない。
func buildPrompt(responses []*model.FeedbackResponse) string {
	byQuestion := make(map[string][]*model.FeedbackResponse)
	var order []string
	for _, r := range responses {
		if _, ok := byQuestion[r.QuestionID]; !ok {
			order = append(order, r.QuestionID)
		}
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
	}
	sort.Strings(order)

	var b strings.Builder
	for _, qid := range order {
		group := byQuestion[qid]
		b.WriteString(fmt.Sprintf("## %s\n", group[0].QuestionText))
		for _, r := range group {
			if r.Rating != nil {
				b.WriteString(fmt.Sprintf("- Rating: %d/5\n", *r.Rating))
				continue
			}
			text := truncateResponse(r.Response)
			b.WriteString(fmt.Sprintf("- %s\n", text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// truncateResponse は長大な回答をmaxResponseCharsバイト以内に切り詰める。
// マルチバイト文字の途中で切らないよう、直前のルーン境界まで戻す。
func truncateResponse(text string) string {
	if len(text) <= maxResponseChars {
		return text
	}
	cut := maxResponseChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
