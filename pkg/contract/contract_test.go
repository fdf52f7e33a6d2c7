package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"空串", "", "."},
		{"相对路径", "./x/../y", "y"},
		{"Windows路径", "C:\\data\\prefs.jsonl", "C:/data/prefs.jsonl"},
		{"清理多余斜杠", "data//prefs///a.jsonl", "data/prefs/a.jsonl"},
		{"混合分隔符", "data\\sub/./a.jsonl", "data/sub/a.jsonl"},
		{"父目录逃逸保留", "a\\b\\..\\..\\..\\d", "../d"},
		{"中文路径", "偏好\\数据/样本.jsonl", "偏好/数据/样本.jsonl"},
		{"Unix绝对路径", "/srv/../data/p.jsonl", "/data/p.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, FileID(tt.expected), NormalizeFileID(tt.input))
		})
	}
}

func TestCleanText(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"   ":                      "",
		"Plan your day.":           "Plan your day.",
		"  Plan \t your\n\nday.  ": "Plan your day.",
		"a\u00a0\u00a0b":           "a b",
	}
	for in, want := range cases {
		got := CleanText(in)
		assert.Equal(t, want, got, "CleanText(%q)", in)
		// 幂等
		assert.Equal(t, got, CleanText(got))
	}
}

func TestFlattenDialogue(t *testing.T) {
	turns := []DialogueTurn{
		{Speaker: "user", Content: "How can I be more productive?"},
		{Speaker: "assistant", Content: "Plan your day."},
	}
	assert.Equal(t, "user: How can I be more productive?\nassistant: Plan your day.", FlattenDialogue(turns))
	assert.Equal(t, "", FlattenDialogue(nil))
}

func TestTrainingBatchLen(t *testing.T) {
	b := TrainingBatch{
		Features: []TokenCounts{{"plan": 1}, {}},
		Labels:   []Label{LabelChosen, LabelRejected},
	}
	require.Equal(t, 2, b.Len())
	assert.Equal(t, 0, TrainingBatch{}.Len())
}

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("line 3: %w", ErrMalformedRecord)
	assert.True(t, errors.Is(err, ErrMalformedRecord))
	assert.False(t, errors.Is(err, ErrInvalidInput))
}
