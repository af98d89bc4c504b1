package assistant

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

func countContaining(messages []*schema.Message, needle string) int {
	n := 0
	for _, msg := range messages {
		if strings.Contains(msg.Content, needle) {
			n++
		}
	}
	return n
}

func TestComposeOmitsGroundingWithoutMatches(t *testing.T) {
	messages := Compose(PromptInput{
		Persona: "persona",
		History: []chat.Message{{Role: chat.RoleUser, Content: "hello there"}},
	})

	require.Len(t, messages, 2)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, schema.User, messages[1].Role)
	assert.Zero(t, countContaining(messages, "catalog"))
}

func TestComposeSingleProductGrounding(t *testing.T) {
	messages := Compose(PromptInput{
		Persona:  "persona",
		Products: []catalog.Product{ultraBook},
		History:  []chat.Message{{Role: chat.RoleUser, Content: "tell me about the UltraBook"}},
	})

	require.Len(t, messages, 3)
	grounding := messages[1]
	assert.Equal(t, schema.System, grounding.Role)
	assert.Contains(t, grounding.Content, "Name: UltraBook X")
	assert.Contains(t, grounding.Content, "Price: £999")
	assert.Contains(t, grounding.Content, "Description: 14-inch laptop")
	assert.Contains(t, grounding.Content, "MUST use only these catalog fields")
	assert.NotContains(t, grounding.Content, "1. ")
}

func TestComposeMultiProductGrounding(t *testing.T) {
	grounding := GroundingBlock([]catalog.Product{
		ultraBook,
		{Name: "Pixel Pro 8", Price: 699, Description: "Smartphone with 50MP lens"},
	})

	assert.Contains(t, grounding, "1. UltraBook X - £999")
	assert.Contains(t, grounding, "2. Pixel Pro 8 - £699")
	assert.Contains(t, grounding, "picks one of these products")
	assert.NotContains(t, grounding, "MUST use only these catalog fields")
	assert.Empty(t, GroundingBlock(nil))
}

func TestComposeContextInformation(t *testing.T) {
	messages := Compose(PromptInput{
		Persona:        "persona",
		CurrentContext: "customer is browsing on mobile",
		Previous: []chat.RelevantContext{{
			ConversationTitle: "Laptop hunt",
			ContextData:       map[string]any{"product_interest": "laptop", "budget": 500},
		}},
	})

	require.Len(t, messages, 2)
	info := messages[1].Content
	assert.True(t, strings.HasPrefix(info, "Context information:\n"), info)
	assert.Contains(t, info, "Current context: customer is browsing on mobile")
	assert.Contains(t, info, `Previous conversation 'Laptop hunt': {"budget":500,"product_interest":"laptop"}`)
}

func TestComposeKeepsTrailingHistoryWindow(t *testing.T) {
	var history []chat.Message
	for i := 0; i < 14; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		history = append(history, chat.Message{Role: role, Content: fmt.Sprintf("m%d", i), Timestamp: time.Now()})
	}

	messages := Compose(PromptInput{Persona: "persona", History: history})

	require.Len(t, messages, 1+chat.HistoryWindow)
	assert.Equal(t, "m4", messages[1].Content)
	assert.Equal(t, schema.User, messages[1].Role)
	assert.Equal(t, "m13", messages[len(messages)-1].Content)
	assert.Equal(t, schema.Assistant, messages[len(messages)-1].Role)
}

func TestFormatPrevious(t *testing.T) {
	assert.Empty(t, FormatPrevious(nil))

	out := FormatPrevious([]chat.RelevantContext{
		{ConversationTitle: "A", ContextData: map[string]any{"order_related": true}},
		{ConversationTitle: "B"},
	})
	assert.Equal(t, "Previous conversation 'A': {\"order_related\":true}\nPrevious conversation 'B': {}", out)
}

func TestPersonaPrompt(t *testing.T) {
	pm := NewPersonaPromptManager()
	prompt := pm.BuildSystemPrompt(DefaultPersonaID)

	assert.Contains(t, prompt, "You are Harvey Spectre")
	assert.Contains(t, prompt, "Ecokart")
	assert.Contains(t, prompt, "- Order status and shipping information")
	assert.Equal(t, prompt, pm.BuildSystemPrompt("unknown"))

	_, err := pm.GetPromptTemplate("unknown")
	assert.Error(t, err)
}
