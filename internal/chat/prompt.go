package chat

import (
	"fmt"
	"strings"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

// systemInstruction constrains the model to answer only from the
// retrieved FAQ context, in Japanese. Edit this to change answer tone.
const systemInstruction = "あなたはFAQチャットボットです。" +
	"提供されたFAQコンテキストに基づいてのみ回答してください。" +
	"コンテキストに含まれない情報については「該当する情報が見つかりませんでした」と回答してください。" +
	"回答は簡潔かつ正確に、日本語で行ってください。"

// contextHeader introduces the retrieved context block.
const contextHeader = "以下はFAQコンテキストです:\n\n"

// BuildPrompt assembles the full message list sent to the model:
// the system instruction, one system message carrying every retrieved
// result tagged [i] in rank order, the history expanded to
// user/assistant pairs in chronological order, and the question last.
//
// Retrieved content is never truncated; the context window is the
// provider's problem, relevance ranking is ours.
func BuildPrompt(question string, results []knowledge.SearchResult, history []session.Message) []llm.Message {
	messages := make([]llm.Message, 0, 2+2*len(history)+1)

	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: systemInstruction,
	})

	if len(results) > 0 {
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = fmt.Sprintf("[%d] %s", i+1, r.Content)
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: contextHeader + strings.Join(parts, "\n\n"),
		})
	}

	for _, msg := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: msg.Question},
			llm.Message{Role: llm.RoleAssistant, Content: msg.Answer},
		)
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

// buildSources snapshots search results into the persisted source shape.
// The snapshot stays valid even after the live index is re-ingested. The
// result is never nil so answers serialize with "sources": [].
func buildSources(results []knowledge.SearchResult) []session.SourceInfo {
	sources := make([]session.SourceInfo, len(results))
	for i, r := range results {
		sources[i] = session.SourceInfo{
			Content:    r.Content,
			OriginFile: r.Metadata[knowledge.MetaOriginFile],
			Kind:       string(r.Kind),
			Score:      r.Score,
		}
		if r.Kind == knowledge.KindImage {
			sources[i].ImagePath = r.Metadata[knowledge.MetaImagePath]
		}
	}
	return sources
}
