package speech

import (
	"strings"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

// VoiceProfile 描述一个可选的合成声音
type VoiceProfile struct {
	Voice string  `json:"voice"`
	Speed float32 `json:"speed"`
}

// voiceAliases 将对外暴露的别名映射到供应商声音
var voiceAliases = map[string]VoiceProfile{
	"aria":   {Voice: "Arista-PlayAI", Speed: 1.0},
	"harvey": {Voice: "Fritz-PlayAI", Speed: 1.0},
	"calm":   {Voice: "Celeste-PlayAI", Speed: 0.9},
	"upbeat": {Voice: "Chip-PlayAI", Speed: 1.1},
}

func defaultVoiceProfiles(cfg config.SpeechConfig) map[string]VoiceProfile {
	profiles := make(map[string]VoiceProfile, len(voiceAliases)+1)
	for alias, profile := range voiceAliases {
		profiles[alias] = profile
	}
	profiles["default"] = VoiceProfile{Voice: cfg.TTSVoice, Speed: cfg.TTSSpeed}
	return profiles
}

// voiceCycle 是口头切换声音时的轮换顺序
var voiceCycle = []string{"default", "aria", "harvey"}

// CanonicalVoice 将已知别名规范为小写别名，其他值视为供应商声音 ID 原样保留。
// 别名在合成时才解析，以保留各别名的语速。
func CanonicalVoice(voice string) string {
	trimmed := strings.TrimSpace(voice)
	key := strings.ToLower(trimmed)
	if _, ok := voiceAliases[key]; ok || key == "default" {
		return key
	}
	return trimmed
}

// NextVoice 返回轮换顺序中 current 之后的别名；未在轮换中的声音从头开始
func NextVoice(current string) string {
	key := CanonicalVoice(current)
	if key == "" {
		key = voiceCycle[0]
	}
	for i, alias := range voiceCycle {
		if alias == key {
			return voiceCycle[(i+1)%len(voiceCycle)]
		}
	}
	return voiceCycle[0]
}

func resolveVoiceProfile(profiles map[string]VoiceProfile, alias string, fallback VoiceProfile) VoiceProfile {
	if fallback.Speed <= 0 {
		fallback.Speed = 1.0
	}

	key := strings.ToLower(strings.TrimSpace(alias))
	if key == "" {
		return fallback
	}

	if profile, ok := profiles[key]; ok {
		if profile.Voice == "" {
			profile.Voice = fallback.Voice
		}
		if profile.Speed <= 0 {
			profile.Speed = fallback.Speed
		}
		return profile
	}

	return VoiceProfile{Voice: strings.TrimSpace(alias), Speed: fallback.Speed}
}
