package history

// ContentBlock is one element of an assistant turn. It is a closed set:
// TextBlock, ThinkingBlock and ToolCallBlock. The two interpretation sites
// (event emission, pending-call extraction) switch exhaustively over it.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock is plain assistant text.
type TextBlock struct {
	Text string `json:"text"`
}

// ThinkingBlock carries the model's reasoning text. Signature is the
// provider's integrity token, kept so the block can be replayed verbatim.
type ThinkingBlock struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

// ToolCallBlock is a structured tool invocation emitted by the model.
type ToolCallBlock struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

func (TextBlock) isContentBlock()     {}
func (ThinkingBlock) isContentBlock() {}
func (ToolCallBlock) isContentBlock() {}

// Attachment is an opaque binary payload carried alongside a user prompt.
// The ledger stores it untouched; providers decide how to encode it.
type Attachment struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}
