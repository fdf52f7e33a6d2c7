package contract

import "strings"

// CleanText 将所有空白串折叠为单个空格并去除首尾空白。幂等。
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FlattenDialogue 将多轮对话合并为单个 prompt，每轮一行 "speaker: content"。
func FlattenDialogue(turns []DialogueTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Speaker+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
