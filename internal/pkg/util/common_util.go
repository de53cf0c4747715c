package util

import "unicode/utf8"

// Preview 按字符截断，用于日志与提醒中的内容摘要
func Preview(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
