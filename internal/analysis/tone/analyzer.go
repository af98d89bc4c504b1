package tone

import "strings"

// Label 表示一轮对话的语气
type Label string

const (
	Neutral    Label = "neutral"
	Happy      Label = "happy"
	Frustrated Label = "frustrated"
	Worried    Label = "worried"
	Excited    Label = "excited"
)

// Decision 给出语气识别结果以及推荐的合成声音别名
type Decision struct {
	Tone  Label
	Voice string
	Score int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"thanks", "thank you", "great", "perfect", "love", "awesome", "brilliant", "lovely", "cheers",
		"happy", "glad", "wonderful",
	},
	Frustrated: {
		"angry", "annoyed", "ridiculous", "terrible", "useless", "worst", "fed up", "unacceptable",
		"refund", "complaint", "broken", "still waiting", "never arrived", "damaged",
	},
	Worried: {
		"worried", "concerned", "lost", "missing", "late", "delayed", "not sure", "help", "problem",
		"issue", "wrong",
	},
	Excited: {
		"can't wait", "excited", "amazing", "wow", "deal", "sale", "new", "gift",
	},
}

// voiceByTone 决定不同语气下回复使用的声音
var voiceByTone = map[Label]string{
	Happy:      "upbeat",
	Excited:    "upbeat",
	Frustrated: "calm",
	Worried:    "calm",
}

// Analyze 根据用户话语与助手回复推断回复应使用的声音。
// 用户情绪优先，回复本身只在用户语气中性时参与判断。
func Analyze(userUtterance, reply string) Decision {
	decision := score(userUtterance)
	if decision.Score == 0 {
		decision = score(reply)
	}
	if decision.Score == 0 {
		return Decision{Tone: Neutral}
	}
	decision.Voice = voiceByTone[decision.Tone]
	return decision
}

func score(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Tone: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if n := strings.Count(text, "!"); n > 0 {
		scores[Excited] += n
	}

	best := Decision{Tone: Neutral}
	// 固定顺序遍历，保证同分时结果稳定
	for _, label := range []Label{Frustrated, Worried, Happy, Excited} {
		if scores[label] > best.Score {
			best = Decision{Tone: label, Score: scores[label]}
		}
	}
	return best
}
