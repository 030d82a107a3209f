package util

import "strings"

// FirstNonEmpty 返回第一个非空 (trim 后) 的字符串。
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// TruncateString 截断字符串 (按 rune), 超长时追加标记, 用于日志展示。
func TruncateString(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "...(truncated)"
}
