package notify

// TextObject はBlock Kitのテキストオブジェクト。
type TextObject struct {
	Type string `json:"type"` // plain_text または mrkdwn
	Text string `json:"text"`
}

// Element はブロック内のインタラクティブ要素（ボタン、入力欄等）。
type Element struct {
	Type        string      `json:"type"`
	Text        *TextObject `json:"text,omitempty"`
	ActionID    string      `json:"action_id,omitempty"`
	Value       string      `json:"value,omitempty"`
	Style       string      `json:"style,omitempty"`
	Placeholder *TextObject `json:"placeholder,omitempty"`
	Multiline   bool        `json:"multiline,omitempty"`
	Options     []Option    `json:"options,omitempty"`
}

// Option は選択要素の選択肢。
type Option struct {
	Text  *TextObject `json:"text"`
	Value string      `json:"value"`
}

// Block はBlock Kitのレイアウトブロック。
// typeに応じて使用されるフィールドが異なる（section, divider, actions, input, context）。
type Block struct {
	Type     string      `json:"type"`
	BlockID  string      `json:"block_id,omitempty"`
	Text     *TextObject `json:"text,omitempty"`
	Label    *TextObject `json:"label,omitempty"`
	Element  *Element    `json:"element,omitempty"`
	Elements []Element   `json:"elements,omitempty"`
	Optional bool        `json:"optional,omitempty"`
}

// View はモーダルまたはアプリホームのビュー定義。
// Typeがhomeの場合、Title・Submit・Closeは設定しない。
type View struct {
	Type            string      `json:"type"` // modal または home
	CallbackID      string      `json:"callback_id,omitempty"`
	PrivateMetadata string      `json:"private_metadata,omitempty"`
	Title           *TextObject `json:"title,omitempty"`
	Submit          *TextObject `json:"submit,omitempty"`
	Close           *TextObject `json:"close,omitempty"`
	Blocks          []Block     `json:"blocks"`
}

// PlainText はplain_textテキストオブジェクトを生成する。
func PlainText(text string) *TextObject {
	return &TextObject{Type: "plain_text", Text: text}
}

// Markdown はmrkdwnテキストオブジェクトを生成する。
func Markdown(text string) *TextObject {
	return &TextObject{Type: "mrkdwn", Text: text}
}

// SectionBlock はmrkdwnテキストのsectionブロックを生成する。
func SectionBlock(text string) Block {
	return Block{Type: "section", Text: Markdown(text)}
}

// DividerBlock はdividerブロックを生成する。
func DividerBlock() Block {
	return Block{Type: "divider"}
}

// ContextBlock は補足テキストのcontextブロックを生成する。
func ContextBlock(text string) Block {
	return Block{Type: "context", Elements: []Element{
		{Type: "mrkdwn", Text: &TextObject{Type: "mrkdwn", Text: text}},
	}}
}

// ActionsBlock はボタン等を並べるactionsブロックを生成する。
func ActionsBlock(blockID string, elements ...Element) Block {
	return Block{Type: "actions", BlockID: blockID, Elements: elements}
}

// ButtonElement はボタン要素を生成する。
// valueにはボタン押下時にハンドラへ渡す識別子を設定する。
func ButtonElement(actionID, label, value, style string) Element {
	return Element{
		Type:     "button",
		Text:     PlainText(label),
		ActionID: actionID,
		Value:    value,
		Style:    style,
	}
}

// InputBlock はモーダル用のinputブロックを生成する。
func InputBlock(blockID, label string, element Element, optional bool) Block {
	return Block{
		Type:     "input",
		BlockID:  blockID,
		Label:    PlainText(label),
		Element:  &element,
		Optional: optional,
	}
}

// TextInputElement は複数行テキスト入力要素を生成する。
func TextInputElement(actionID, placeholder string, multiline bool) Element {
	e := Element{
		Type:      "plain_text_input",
		ActionID:  actionID,
		Multiline: multiline,
	}
	if placeholder != "" {
		e.Placeholder = PlainText(placeholder)
	}
	return e
}

// RatingSelectElement は1〜5の数値評価の選択要素を生成する。
func RatingSelectElement(actionID string) Element {
	labels := []struct{ text, value string }{
		{"1 - 要改善", "1"},
		{"2 - 期待以下", "2"},
		{"3 - 期待通り", "3"},
		{"4 - 期待以上", "4"},
		{"5 - 卓越", "5"},
	}
	opts := make([]Option, 0, len(labels))
	for _, l := range labels {
		opts = append(opts, Option{Text: PlainText(l.text), Value: l.value})
	}
	return Element{
		Type:        "static_select",
		ActionID:    actionID,
		Placeholder: PlainText("評価を選択"),
		Options:     opts,
	}
}
