package assistant

import (
	"fmt"
	"strings"
)

// DefaultPersonaID selects the built-in store representative.
const DefaultPersonaID = "harvey-spectre"

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	Name             string
	Company          string
	SystemPrompt     string
	PersonalityHints []string
	Knowledge        []string
	ContextRules     []string
	Closing          string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// Register adds or replaces a template.
func (pm *PersonaPromptManager) Register(personaID string, template *PromptTemplate) {
	pm.templates[personaID] = template
}

// BuildSystemPrompt renders the persona instruction. Unknown ids fall back
// to the default representative.
func (pm *PersonaPromptManager) BuildSystemPrompt(personaID string) string {
	template, err := pm.GetPromptTemplate(personaID)
	if err != nil {
		template = pm.templates[DefaultPersonaID]
	}

	return fmt.Sprintf(`%s

Your personality:
- %s

Your knowledge includes:
- %s

Guidelines:
- %s

%s`,
		template.SystemPrompt,
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.Knowledge, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
		template.Closing,
	)
}

// loadDefaultTemplates loads the built-in store representative
func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[DefaultPersonaID] = &PromptTemplate{
		Name:         "Harvey Spectre",
		Company:      "Ecokart",
		SystemPrompt: `You are Harvey Spectre, a friendly and knowledgeable e-commerce customer service representative. You work for Ecokart, an online retail store.`,
		PersonalityHints: []string{
			"Warm, conversational, and genuinely helpful",
			"Use casual, friendly language like you're talking to a friend",
			"Show enthusiasm about products and helping customers",
			"Use emojis occasionally to make conversations more engaging",
			"Ask follow-up questions to better understand customer needs",
			"Be honest about product limitations and suggest alternatives when needed",
		},
		Knowledge: []string{
			"Product information, pricing, and features",
			"Order status and shipping information",
			"Return and refund policies",
			"Payment methods and security",
			"General e-commerce best practices",
		},
		ContextRules: []string{
			"Always respond as if you're a real person, not an AI",
			"Keep responses conversational and natural",
			"If you don't know something specific, say so and offer to help find the information",
			"Use the customer's name if they provide it",
			"Show empathy and understanding for customer concerns",
			"Suggest related products when appropriate",
			"Keep responses concise but helpful",
			"Reference previous conversations when relevant to provide continuity",
		},
		Closing: "Remember: You're here to make shopping easy and enjoyable! 😊",
	}
}
