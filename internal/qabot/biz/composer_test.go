package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qabot/pkg/llm"
)

func match(chunkID string, row int, question string, score float64) *RetrievalMatch {
	return &RetrievalMatch{
		ChunkID:   chunkID,
		RowNumber: row,
		Question:  question,
		Answer:    "answer for " + question,
		Score:     score,
	}
}

func TestCompose_EmptyMatchesFallback(t *testing.T) {
	chat := &fakeChat{response: "不應該被呼叫"}
	composer := NewComposer(chat)

	result, degraded := composer.Compose(context.Background(), "不相關的問題", nil, nil)

	assert.Equal(t, fallbackAnswer, result.Answer)
	assert.Zero(t, result.Confidence)
	assert.Zero(t, result.MatchesFound)
	assert.Empty(t, result.Sources)
	assert.Zero(t, chat.calls, "empty matches must not invoke the LLM")
	// The no-knowledge fallback is a deterministic answer, not a fault.
	assert.False(t, degraded)
}

func TestCompose_GroundedAnswer(t *testing.T) {
	chat := &fakeChat{response: "您可以在官網報名頁面填寫表單。"}
	composer := NewComposer(chat)

	matches := []*RetrievalMatch{
		match("row-2#0", 2, "如何報名？", 0.92),
		match("row-5#0", 5, "報名截止日？", 0.64),
	}
	matches[0].Link = "https://example.com/signup"

	result, degraded := composer.Compose(context.Background(), "我要怎麼報名課程", nil, matches)

	assert.False(t, degraded)
	assert.Equal(t, chat.response, result.Answer)
	assert.Equal(t, 2, result.MatchesFound)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, 2, result.Sources[0].RowNumber)
	assert.Equal(t, "https://example.com/signup", result.Sources[0].Link)
	assert.InDelta(t, (0.92+0.78)/2, result.Confidence, 1e-6)

	// The grounding prompt carries the query and every match.
	assert.Contains(t, chat.lastPrompt, "我要怎麼報名課程")
	assert.Contains(t, chat.lastPrompt, "如何報名？")
	assert.Contains(t, chat.lastPrompt, "報名截止日？")
	assert.Contains(t, chat.lastPrompt, "https://example.com/signup")
	assert.Contains(t, chat.systemPrompt, "繁體中文")
}

func TestCompose_GenerationFailureDegrades(t *testing.T) {
	chat := &fakeChat{err: errors.New("provider timeout")}
	composer := NewComposer(chat)

	matches := []*RetrievalMatch{match("row-2#0", 2, "如何報名？", 0.9)}

	result, degraded := composer.Compose(context.Background(), "我要報名", nil, matches)

	assert.True(t, degraded)
	assert.Equal(t, fallbackAnswer, result.Answer)
	assert.Zero(t, result.Confidence)
	// Sources are still reported so the caller can see what was retrieved.
	assert.Len(t, result.Sources, 1)
}

func TestCompose_HistoryGoesMultiTurn(t *testing.T) {
	chat := &fakeChat{response: "是的，進階班也有週末時段。"}
	composer := NewComposer(chat)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "有 Python 課程嗎？"},
		{Role: llm.RoleAssistant, Content: "有的，我們提供入門與進階課程。"},
	}
	matches := []*RetrievalMatch{match("row-4#0", 4, "課程時段有哪些？", 0.85)}

	result, degraded := composer.Compose(context.Background(), "那進階班有週末時段嗎", history, matches)

	assert.False(t, degraded)
	assert.Equal(t, chat.response, result.Answer)
	assert.Equal(t, 1, chat.chatCalls, "history-bearing requests use the multi-turn call")

	// system prompt first, prior turns in order, grounding prompt last as the
	// final user message.
	require.Len(t, chat.lastMessages, 4)
	assert.Equal(t, llm.RoleSystem, chat.lastMessages[0].Role)
	assert.Equal(t, history[0], chat.lastMessages[1])
	assert.Equal(t, history[1], chat.lastMessages[2])
	assert.Equal(t, llm.RoleUser, chat.lastMessages[3].Role)
	assert.Contains(t, chat.lastMessages[3].Content, "那進階班有週末時段嗎")
	assert.Contains(t, chat.lastMessages[3].Content, "課程時段有哪些？")
}

func TestConfidence_MonotonicInTopScore(t *testing.T) {
	low := []*RetrievalMatch{match("a#0", 2, "q", 0.5), match("b#0", 3, "q2", 0.4)}
	high := []*RetrievalMatch{match("a#0", 2, "q", 0.8), match("b#0", 3, "q2", 0.4)}

	assert.GreaterOrEqual(t, Confidence(high), Confidence(low))
}

func TestConfidence_Bounds(t *testing.T) {
	assert.Zero(t, Confidence(nil))

	exact := []*RetrievalMatch{match("a#0", 2, "q", 1.0)}
	assert.InDelta(t, 1.0, Confidence(exact), 1e-9)

	mixed := []*RetrievalMatch{match("a#0", 2, "q", 0.9), match("b#0", 3, "q2", 0.3)}
	conf := Confidence(mixed)
	assert.Greater(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 1.0)
	assert.InDelta(t, (0.9+0.6)/2, conf, 1e-9)
}
