package message

import (
	"encoding/json"
	"sort"
)

// StreamAccumulator folds stream events into progressively complete
// AssistantMessage snapshots. State is kept per session ID, so events from
// interleaved sessions (for example subagent output) do not corrupt each
// other. It is not safe for concurrent use; feed it from a single receive
// loop.
type StreamAccumulator struct {
	sessions map[string]*sessionState
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{
		sessions: make(map[string]*sessionState),
	}
}

// ProcessEvent folds one stream event into the accumulator and returns the
// current message snapshot for that event's session. It returns nil for
// message_start (no content yet) and for event types that do not affect
// accumulation. message_stop returns the final snapshot and retains the
// session for a continued conversation; drop the whole accumulator to free
// all sessions.
func (a *StreamAccumulator) ProcessEvent(ev *StreamEvent) *AssistantMessage {
	if ev == nil || ev.Event == nil {
		return nil
	}

	sessionID := ev.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	session, ok := a.sessions[sessionID]
	if !ok {
		session = &sessionState{blocks: make(map[int]*blockState)}
		a.sessions[sessionID] = session
	}

	eventType, _ := ev.Event["type"].(string)

	switch eventType {
	case "message_start":
		messageData, _ := ev.Event["message"].(map[string]any)

		model, _ := messageData["model"].(string)
		if model == "" {
			model = "unknown"
		}

		session.startMessage(model, ev.ParentToolUseID)

		return nil

	case "content_block_start":
		index := eventIndex(ev.Event)
		contentBlock, _ := ev.Event["content_block"].(map[string]any)
		session.startBlock(index, contentBlock)

		return session.snapshot()

	case "content_block_delta":
		index := eventIndex(ev.Event)
		delta, _ := ev.Event["delta"].(map[string]any)
		session.applyDelta(index, delta)

		return session.snapshot()

	case "content_block_stop", "message_delta", "message_stop":
		return session.snapshot()

	default:
		return nil
	}
}

// eventIndex reads the block index from an event, defaulting to 0.
func eventIndex(event map[string]any) int {
	if f, ok := event["index"].(float64); ok {
		return int(f)
	}

	return 0
}

// sessionState tracks one streaming session.
type sessionState struct {
	model           string
	parentToolUseID *string
	blocks          map[int]*blockState
	active          bool
}

func (s *sessionState) startMessage(model string, parentToolUseID *string) {
	s.model = model
	s.parentToolUseID = parentToolUseID
	s.blocks = make(map[int]*blockState)
	s.active = true
}

func (s *sessionState) startBlock(index int, contentBlock map[string]any) {
	blockType, _ := contentBlock["type"].(string)

	switch blockType {
	case "text":
		text, _ := contentBlock["text"].(string)
		s.blocks[index] = &blockState{blockType: "text", content: text}
	case "thinking":
		thinking, _ := contentBlock["thinking"].(string)
		signature, _ := contentBlock["signature"].(string)
		s.blocks[index] = &blockState{blockType: "thinking", content: thinking, signature: signature}
	case "tool_use":
		id, _ := contentBlock["id"].(string)
		name, _ := contentBlock["name"].(string)

		input, _ := contentBlock["input"].(map[string]any)
		if input == nil {
			input = map[string]any{}
		}

		s.blocks[index] = &blockState{blockType: "tool_use", toolUseID: id, toolName: name, toolInput: input}
	}
}

func (s *sessionState) applyDelta(index int, delta map[string]any) {
	block, ok := s.blocks[index]
	if !ok {
		return
	}

	deltaType, _ := delta["type"].(string)

	switch deltaType {
	case "text_delta":
		text, _ := delta["text"].(string)
		block.content += text
	case "thinking_delta":
		thinking, _ := delta["thinking"].(string)
		block.content += thinking
	case "input_json_delta":
		partial, _ := delta["partial_json"].(string)
		block.toolInputJSON += partial
	}
}

// snapshot builds the current AssistantMessage, blocks ordered by index.
func (s *sessionState) snapshot() *AssistantMessage {
	if !s.active || s.model == "" {
		return nil
	}

	indexes := make([]int, 0, len(s.blocks))
	for index := range s.blocks {
		indexes = append(indexes, index)
	}

	sort.Ints(indexes)

	content := make([]ContentBlock, 0, len(indexes))

	for _, index := range indexes {
		block := s.blocks[index]

		switch block.blockType {
		case "text":
			content = append(content, &TextBlock{Type: "text", Text: block.content})
		case "thinking":
			content = append(content, &ThinkingBlock{Type: "thinking", Thinking: block.content, Signature: block.signature})
		case "tool_use":
			// Partial JSON often fails to parse mid-stream; keep the
			// prior input until the buffer becomes valid.
			input := block.toolInput

			if block.toolInputJSON != "" {
				var parsed map[string]any
				if err := json.Unmarshal([]byte(block.toolInputJSON), &parsed); err == nil {
					input = parsed
				}
			}

			content = append(content, &ToolUseBlock{
				Type:  "tool_use",
				ID:    block.toolUseID,
				Name:  block.toolName,
				Input: input,
			})
		}
	}

	return &AssistantMessage{
		Type:            "assistant",
		Content:         content,
		Model:           s.model,
		ParentToolUseID: s.parentToolUseID,
	}
}

// blockState tracks one content block being streamed.
type blockState struct {
	blockType     string
	content       string
	signature     string
	toolUseID     string
	toolName      string
	toolInput     map[string]any
	toolInputJSON string
}
