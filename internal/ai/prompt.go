package ai

import (
	"fmt"
	"math/rand/v2"

	"github.com/yektayar/gateway/internal/i18n"
)

// defaultSystemPrompt is used when locale resources are unavailable.
const defaultSystemPrompt = `You are a compassionate and professional mental health AI counselor named YektaYar AI. Your role is to provide supportive, empathetic, and helpful guidance to users seeking mental health support.

Guidelines:
1. Always be empathetic, warm, and non-judgmental
2. Provide practical, evidence-based advice for mental wellness
3. Encourage professional help when needed (you are not a replacement for professional therapy)
4. Maintain confidentiality and respect privacy
5. Use simple, clear language that's easy to understand
6. Be culturally sensitive and respectful
7. Focus on positive psychology and solution-oriented approaches
8. Validate users' feelings and experiences
9. Provide coping strategies and self-care techniques
10. Never give medical diagnoses or prescribe medication

Your responses should be:
- Supportive and understanding
- Practical and actionable
- Brief but comprehensive (2-4 paragraphs typically)
- Encouraging and hopeful
- Focused on the user's wellbeing

Remember: You are here to support, guide, and encourage users on their mental wellness journey.`

// defaultFallbacks backs the canned fallback messages when no locale
// resources are loaded. Users of a mental health product must always get a
// supportive reply, never a bare error.
var defaultFallbacks = []string{
	"Thank you for reaching out. I'm here to support you. While I'm experiencing some technical difficulties at the moment, I want you to know that what you're feeling is valid and important. Could you tell me more about what's on your mind?",
	"I appreciate you sharing with me. Although I'm having trouble connecting to my full resources right now, I'm still here for you. Remember that seeking help is a sign of strength, and taking care of your mental health is important.",
	"I'm experiencing some technical challenges, but I want to acknowledge your message. Your mental wellbeing matters, and it's brave of you to reach out. Please know that you're not alone, and professional support is available if you need it.",
	"Thank you for trusting me with your thoughts. While I'm having some connectivity issues, I encourage you to continue this conversation. If you're in crisis or need immediate support, please reach out to a mental health professional or crisis hotline.",
}

const systemPromptKey = "ai_system_prompt"

// Prompts resolves locale-specific counselor prompts and fallback replies.
// The translator may be nil, in which case the built-in defaults apply.
type Prompts struct {
	translator  *i18n.I18n
	defaultLang string
}

// NewPrompts creates a prompt resolver
func NewPrompts(translator *i18n.I18n, defaultLang string) *Prompts {
	return &Prompts{
		translator:  translator,
		defaultLang: defaultLang,
	}
}

// SystemPrompt returns the counselor system prompt for the language,
// falling back to the built-in default prompt.
func (p *Prompts) SystemPrompt(lang string) string {
	if lang == "" {
		lang = p.defaultLang
	}
	if p.translator != nil {
		if msg := p.translator.Translate(systemPromptKey, lang, nil); msg != systemPromptKey {
			return msg
		}
	}
	return defaultSystemPrompt
}

// Fallback returns one of the canned, locale-matched empathetic replies.
func (p *Prompts) Fallback(lang string) string {
	if lang == "" {
		lang = p.defaultLang
	}
	n := rand.IntN(len(defaultFallbacks))
	if p.translator != nil {
		key := fmt.Sprintf("ai_fallback_%d", n+1)
		if msg := p.translator.Translate(key, lang, nil); msg != key {
			return msg
		}
	}
	return defaultFallbacks[n]
}
