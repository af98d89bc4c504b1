package assistant

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

// PromptInput gathers everything a completion request is built from.
type PromptInput struct {
	Persona        string
	CurrentContext string
	Previous       []chat.RelevantContext
	Products       []catalog.Product
	History        []chat.Message
}

// Compose builds the ordered message list for the completion client:
// persona, catalog grounding, context information, then the trailing history
// window. Empty sections are omitted.
func Compose(in PromptInput) []*schema.Message {
	messages := make([]*schema.Message, 0, 3+chat.HistoryWindow)

	if persona := strings.TrimSpace(in.Persona); persona != "" {
		messages = append(messages, schema.SystemMessage(persona))
	}
	if grounding := GroundingBlock(in.Products); grounding != "" {
		messages = append(messages, schema.SystemMessage(grounding))
	}
	if info := contextInformation(in.CurrentContext, in.Previous); info != "" {
		messages = append(messages, schema.SystemMessage(info))
	}

	return append(messages, buildHistoryMessages(in.History)...)
}

// GroundingBlock renders the catalog facts the model must stay faithful to.
func GroundingBlock(products []catalog.Product) string {
	switch len(products) {
	case 0:
		return ""
	case 1:
		p := products[0]
		return fmt.Sprintf(`Catalog facts from Ecokart for this product:
Name: %s
Price: %s
Description: %s

You MUST use only these catalog fields when you talk about %s. Do not invent a different price, description or specification for it.`,
			p.Name, p.PriceLabel(), p.Description, p.Name)
	default:
		var b strings.Builder
		b.WriteString("Relevant products from the Ecokart catalog:\n")
		for i, p := range products {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.Name, p.PriceLabel())
		}
		b.WriteString("\nIf the customer picks one of these products, use only that product's catalog fields and do not invent alternative facts about it.")
		return b.String()
	}
}

func contextInformation(current string, previous []chat.RelevantContext) string {
	var b strings.Builder
	if current = strings.TrimSpace(current); current != "" {
		fmt.Fprintf(&b, "Current context: %s\n", current)
	}
	if prev := FormatPrevious(previous); prev != "" {
		fmt.Fprintf(&b, "Previous conversations: %s\n", prev)
	}
	if b.Len() == 0 {
		return ""
	}
	return "Context information:\n" + b.String()
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > chat.HistoryWindow {
		startIdx = len(messages) - chat.HistoryWindow
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
