package facts

import "strings"

// DefaultTitle names conversations with no recognisable topic.
const DefaultTitle = "General Inquiry"

const titleWordLimit = 6

// Service topics outrank product topics when naming a conversation.
var (
	serviceTopics = []string{"refund", "return", "order", "payment", "shipping", "cancel", "exchange"}
	productTopics = []string{"iphone", "samsung", "laptop", "macbook", "jeans", "shirt", "coffee", "blender"}
)

// AutoTitle 根据用户消息生成对话标题：先找售后话题，再找商品话题，
// 否则截取前六个词。
func AutoTitle(userMessages []string) string {
	text := strings.ToLower(strings.Join(userMessages, " "))
	for _, topics := range [][]string{serviceTopics, productTopics} {
		for _, topic := range topics {
			if strings.Contains(text, topic) {
				return strings.ToUpper(topic[:1]) + topic[1:]
			}
		}
	}

	words := strings.Fields(text)
	if len(words) > titleWordLimit {
		return strings.Join(words[:titleWordLimit], " ") + "..."
	}
	return DefaultTitle
}
