package controller

import (
	"strings"

	"github.com/user/voiceline/internal/language"
	"github.com/user/voiceline/internal/types"
)

// DefaultInstructions is the base template used when an agent has no custom
// instructions configured.
const DefaultInstructions = "You are a helpful, concise, and professional AI assistant. " +
	"Keep responses natural and brief (1-3 sentences)."

// DefaultVoice is used when the agent configuration does not name a voice.
const DefaultVoice = "sage"

// composeInstructions builds the final instruction text for one call:
// base template, custom override if provided, knowledge augmentation,
// gender note, and the target-language directive, in that order.
func composeInstructions(base string, cfg *types.AgentConfig, knowledgeText, langCode string) string {
	text := base
	if cfg != nil && cfg.CustomInstructions != "" {
		text = cfg.CustomInstructions
	}

	if knowledgeText != "" {
		text += "\n\nKNOWLEDGE:\n" + knowledgeText
	}

	if cfg != nil {
		switch gender := strings.ToLower(cfg.Gender); gender {
		case "male", "female", "neutral":
			text += "\n\nYou are a " + gender + " AI agent."
		}
	}

	meta := language.Lookup(langCode)
	text += "\n\nRespond in " + meta.Label + "."
	return text
}

// voiceFor picks the session voice: the agent's configured voice when set,
// otherwise the service default.
func voiceFor(cfg *types.AgentConfig, fallback string) string {
	if cfg != nil && cfg.Voice != "" {
		return cfg.Voice
	}
	if fallback != "" {
		return fallback
	}
	return DefaultVoice
}

// knowledgeText concatenates knowledge entries into the augmentation block.
func knowledgeText(entries []types.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Content != "" {
			parts = append(parts, entry.Content)
		}
	}
	return strings.Join(parts, " ")
}
