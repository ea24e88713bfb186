package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/qabot/internal/model"
	"github.com/kart-io/qabot/pkg/llm"
)

const systemPrompt = `你是一位親切專業的客服助理，負責回答訪客關於公司服務的問題。

## 回答規則

1. **僅根據提供的參考資料回答**。不要編造公司沒有的服務或功能。
2. **使用繁體中文回答**，語氣親切、專業。
3. 如果參考資料中有相關連結，自然地在回答中包含連結。格式範例：「您可以在這裡查看詳情：[連結]」
4. 如果參考資料中沒有連結，就正常回答文字內容即可，不要提到「沒有連結」。
5. 如果有多個相關結果，將它們整合成一個完整的回答，必要時列出選項。
6. 如果訪客的問題太廣泛，可以詢問進一步的細節以縮小範圍。
7. 如果找不到相關答案，禮貌地回覆：「很抱歉，我目前無法回答這個問題。請透過 support@example.com 或撥打 02-1234-5678 聯繫我們的客服團隊，我們會盡快為您服務。」
8. 保持回答簡潔明瞭，避免冗長重複。

## 重要
- 絕對不要編造不在參考資料中的資訊
- 不要回答與公司服務無關的問題
- 如果不確定，寧可引導訪客聯繫客服`

// fallbackAnswer is returned verbatim when retrieval finds nothing relevant
// or generation fails. Deterministic so the no-knowledge outcome is testable.
const fallbackAnswer = `很抱歉，我目前無法回答這個問題。請透過 support@example.com 或撥打 02-1234-5678 聯繫我們的客服團隊，我們會盡快為您服務。`

// Composer turns retrieval matches into a grounded, confidence-scored answer.
type Composer struct {
	chat llm.ChatProvider
}

// NewComposer creates a composer instance.
func NewComposer(chat llm.ChatProvider) *Composer {
	return &Composer{chat: chat}
}

// Compose generates a grounded answer for the query. An empty match set
// yields the fallback answer with confidence 0 and no LLM call. A generation
// failure degrades to the same fallback; the chat path never surfaces a
// provider fault to the visitor. The second return reports that degradation:
// a degraded result reflects a transient provider fault, not the knowledge
// base, so callers must not cache it. history carries the prior turns of the
// conversation; when present the provider is called in multi-turn mode.
func (c *Composer) Compose(ctx context.Context, query string, history []llm.Message, matches []*RetrievalMatch) (*model.QueryResult, bool) {
	sources := buildSources(matches)

	if len(matches) == 0 {
		return &model.QueryResult{
			Answer:       fallbackAnswer,
			Sources:      sources,
			Confidence:   0,
			MatchesFound: 0,
		}, false
	}

	prompt := buildPrompt(query, matches)

	answer, err := c.generate(ctx, prompt, history)
	if err != nil {
		logger.Errorw("answer generation failed, returning fallback",
			"error", err.Error(),
			"matches", len(matches),
		)
		return &model.QueryResult{
			Answer:       fallbackAnswer,
			Sources:      sources,
			Confidence:   0,
			MatchesFound: len(matches),
		}, true
	}

	return &model.QueryResult{
		Answer:       answer,
		Sources:      sources,
		Confidence:   Confidence(matches),
		MatchesFound: len(matches),
	}, false
}

// generate calls the chat provider: single-turn Generate for a fresh
// conversation, multi-turn Chat when prior turns exist. The grounding prompt
// is always the final user message.
func (c *Composer) generate(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	if len(history) == 0 {
		resp, err := c.chat.Generate(ctx, prompt, systemPrompt)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return c.chat.Chat(ctx, messages)
}

// Confidence blends the top score with the mean score, clamped to [0,1].
// Monotonic in the top score; exactly 0 for an empty match set.
func Confidence(matches []*RetrievalMatch) float64 {
	if len(matches) == 0 {
		return 0
	}

	var sum float64
	for _, m := range matches {
		sum += m.Score
	}
	avg := sum / float64(len(matches))
	top := matches[0].Score

	conf := (top + avg) / 2
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// buildPrompt lays out the query and the numbered 參考資料 blocks the system
// prompt instructs the model to answer from.
func buildPrompt(query string, matches []*RetrievalMatch) string {
	var b strings.Builder
	b.WriteString("訪客問題：")
	b.WriteString(query)
	b.WriteString("\n\n以下是從知識庫中檢索到的相關參考資料：\n\n")

	for i, m := range matches {
		fmt.Fprintf(&b, "【參考資料 %d】（相關度：%.2f）\n", i+1, m.Score)
		fmt.Fprintf(&b, "問題：%s\n", m.Question)
		fmt.Fprintf(&b, "答案：%s", m.Answer)
		if m.Link != "" {
			fmt.Fprintf(&b, "\n連結：%s", m.Link)
		}
		if m.Category != "" {
			fmt.Fprintf(&b, "\n分類：%s", m.Category)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("請根據以上參考資料回答訪客的問題。")
	return b.String()
}

func buildSources(matches []*RetrievalMatch) []model.Source {
	sources := make([]model.Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, model.Source{
			RowNumber:      m.RowNumber,
			Question:       m.Question,
			RelevanceScore: m.Score,
			Category:       m.Category,
			Link:           m.Link,
		})
	}
	return sources
}
