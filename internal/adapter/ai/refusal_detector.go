package ai

import "strings"

var refusalIndicators = []string{
	"i'm sorry", "i am sorry", "i cannot", "i can't", "i'm unable", "i apologize",
	"unfortunately", "as an ai", "no alternative", "no suggestion",
	"抱歉", "对不起", "无法", "不能提供", "没有找到",
}

// IsRefusal reports whether a completion declines the request instead of answering it.
func IsRefusal(response string) bool {
	lower := strings.ToLower(strings.TrimSpace(response))
	if lower == "" {
		return false
	}
	for _, indicator := range refusalIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
