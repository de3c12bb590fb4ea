package chat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

func TestBuildPrompt(t *testing.T) {
	results := []knowledge.SearchResult{
		{Content: "登録方法\nメールアドレスで登録できます。", Score: 0.92, Kind: knowledge.KindText},
		{Content: "ネットワーク構成図", Score: 0.81, Kind: knowledge.KindImage},
	}
	history := []session.Message{
		{Question: "アカウントは無料ですか?", Answer: "はい、無料です。"},
		{Question: "支払い方法は?", Answer: "クレジットカードが使えます。"},
	}

	messages := BuildPrompt("退会方法を教えて", results, history)
	require.Len(t, messages, 2+2*len(history)+1)

	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, systemInstruction, messages[0].Content)

	context := messages[1]
	assert.Equal(t, llm.RoleSystem, context.Role)
	assert.Contains(t, context.Content, "[1] 登録方法\nメールアドレスで登録できます。")
	assert.Contains(t, context.Content, "[2] ネットワーク構成図")

	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "アカウントは無料ですか?"}, messages[2])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "はい、無料です。"}, messages[3])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "支払い方法は?"}, messages[4])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "クレジットカードが使えます。"}, messages[5])

	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "退会方法を教えて", last.Content)
}

func TestBuildPromptNoResults(t *testing.T) {
	messages := BuildPrompt("質問", nil, nil)
	require.Len(t, messages, 2)
	assert.Equal(t, systemInstruction, messages[0].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "質問"}, messages[1])
}

func TestBuildPromptContentNeverTruncated(t *testing.T) {
	long := ""
	for range 1000 {
		long += "長い本文。"
	}
	messages := BuildPrompt("q", []knowledge.SearchResult{{Content: long}}, nil)
	assert.Contains(t, messages[1].Content, long)
}

func TestBuildPromptRankOrder(t *testing.T) {
	var results []knowledge.SearchResult
	for i := range 5 {
		results = append(results, knowledge.SearchResult{Content: fmt.Sprintf("doc-%d", i)})
	}

	context := BuildPrompt("q", results, nil)[1].Content
	prev := -1
	for i := range 5 {
		tag := fmt.Sprintf("[%d] doc-%d", i+1, i)
		idx := strings.Index(context, tag)
		require.GreaterOrEqual(t, idx, 0, tag)
		assert.Greater(t, idx, prev)
		prev = idx
	}
}

func TestBuildSources(t *testing.T) {
	results := []knowledge.SearchResult{
		{
			Content: "テキスト回答",
			Score:   0.9,
			Kind:    knowledge.KindText,
			Metadata: map[string]string{
				knowledge.MetaOriginFile: "faq.xlsx",
			},
		},
		{
			Content: "画像の説明",
			Score:   0.7,
			Kind:    knowledge.KindImage,
			Metadata: map[string]string{
				knowledge.MetaOriginFile: "diagram.png",
				knowledge.MetaImagePath:  "/data/images/diagram.png",
			},
		},
	}

	sources := buildSources(results)
	require.Len(t, sources, 2)

	assert.Equal(t, session.SourceInfo{
		Content:    "テキスト回答",
		OriginFile: "faq.xlsx",
		Kind:       "text",
		Score:      0.9,
	}, sources[0])

	assert.Equal(t, "/data/images/diagram.png", sources[1].ImagePath)
	assert.Equal(t, "image", sources[1].Kind)

	// Empty input yields an empty, non-nil slice so the JSON field is []
	// rather than null.
	empty := buildSources(nil)
	require.NotNil(t, empty)
	assert.Empty(t, empty)
}
