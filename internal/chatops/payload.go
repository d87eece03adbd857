package chatops

import (
	"encoding/json"
	"fmt"
)

// InteractionPayload はインタラクションエンドポイントに届くJSONペイロード。
// typeに応じて使用されるフィールドが異なる（block_actions, view_submission）。
type InteractionPayload struct {
	Type        string          `json:"type"`
	Team        PayloadTeam     `json:"team"`
	User        PayloadUser     `json:"user"`
	TriggerID   string          `json:"trigger_id"`
	ResponseURL string          `json:"response_url"`
	Actions     []PayloadAction `json:"actions"`
	View        *PayloadView    `json:"view"`
}

// PayloadTeam はペイロード内のワークスペース識別情報。
type PayloadTeam struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// PayloadUser はペイロード内の操作ユーザー情報。
type PayloadUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// PayloadAction はblock_actionsペイロード内の操作要素。
type PayloadAction struct {
	ActionID string `json:"action_id"`
	BlockID  string `json:"block_id"`
	Value    string `json:"value"`
}

// PayloadView はview_submissionペイロード内のモーダル情報。
type PayloadView struct {
	ID              string           `json:"id"`
	CallbackID      string           `json:"callback_id"`
	PrivateMetadata string           `json:"private_metadata"`
	State           PayloadViewState `json:"state"`
}

// PayloadViewState はモーダルの入力状態。
// values[block_id][action_id] で各入力要素の値にアクセスする。
type PayloadViewState struct {
	Values map[string]map[string]PayloadInputValue `json:"values"`
}

// PayloadInputValue はモーダル入力要素の値。
// 要素種別に応じてValueまたはSelectedOptionが設定される。
type PayloadInputValue struct {
	Type            string          `json:"type"`
	Value           string          `json:"value"`
	SelectedOption  *PayloadOption  `json:"selected_option"`
	SelectedOptions []PayloadOption `json:"selected_options"`
}

// PayloadOption は選択要素の選択済みオプション。
type PayloadOption struct {
	Value string `json:"value"`
}

// ParseInteractionPayload はapplication/x-www-form-urlencodedの
// payloadフィールドに入っているJSONを解析する。
func ParseInteractionPayload(raw string) (*InteractionPayload, error) {
	if raw == "" {
		return nil, fmt.Errorf("ペイロードが空です")
	}
	var payload InteractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("ペイロードJSONのパースに失敗しました: %w", err)
	}
	return &payload, nil
}

// InputValue はblock_idとaction_idで指定した入力要素の値を返す。
// テキスト入力はValue、選択要素はSelectedOption.Valueを返す。
// 未入力または存在しない要素は空文字列を返す。
func (s PayloadViewState) InputValue(blockID, actionID string) string {
	block, ok := s.Values[blockID]
	if !ok {
		return ""
	}
	input, ok := block[actionID]
	if !ok {
		return ""
	}
	if input.SelectedOption != nil {
		return input.SelectedOption.Value
	}
	return input.Value
}

// CheckboxChecked はチェックボックス要素で指定の値が選択されているかを返す。
func (s PayloadViewState) CheckboxChecked(blockID, actionID, value string) bool {
	block, ok := s.Values[blockID]
	if !ok {
		return false
	}
	input, ok := block[actionID]
	if !ok {
		return false
	}
	for _, opt := range input.SelectedOptions {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// EventCallback はイベントエンドポイントに届くJSONペイロード。
// typeがurl_verificationの場合はChallengeをそのまま応答する。
type EventCallback struct {
	Type      string      `json:"type"`
	Challenge string      `json:"challenge"`
	TeamID    string      `json:"team_id"`
	Event     *InnerEvent `json:"event"`
}

// InnerEvent はイベントコールバック内の個別イベント。
type InnerEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
	Tab  string `json:"tab"`
}

// ParseEventCallback はイベントペイロードのJSONを解析する。
func ParseEventCallback(body []byte) (*EventCallback, error) {
	var event EventCallback
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("イベントJSONのパースに失敗しました: %w", err)
	}
	return &event, nil
}
