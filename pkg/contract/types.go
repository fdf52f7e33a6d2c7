package contract

// FileID: 逻辑来源ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// PreferenceExample: 一条成对偏好样本（同一 prompt 下 chosen 优于 rejected）。
// 约束：
// - 构造后只读；
// - 三个字段均已经过 CleanText，允许为空串。
type PreferenceExample struct {
	Prompt   string `json:"prompt"`
	Chosen   string `json:"chosen"`
	Rejected string `json:"rejected"`
}

// Label: 二值标签（chosen=1，rejected=0）。
type Label int

const (
	LabelRejected Label = 0
	LabelChosen   Label = 1
)

// 行来源标记，仅用于调试，不参与计算。
const (
	TagChosen   = "chosen"
	TagRejected = "rejected"
)

// TokenCounts: 单条补全的 token → 出现次数。键唯一，遍历顺序无意义。
type TokenCounts map[string]int

// TrainingBatch: 训练/验证批。
// 约束：len(Features) == len(Labels)，按下标对齐；Tags 与二者等长（可为空）。
// 构造后不再修改。
type TrainingBatch struct {
	Features []TokenCounts
	Labels   []Label
	Tags     []string
}

// Len 返回批内行数。
func (b TrainingBatch) Len() int { return len(b.Labels) }

// ScoredCandidate: 候选补全及其奖励分。
type ScoredCandidate struct {
	Text   string  `json:"text"`
	Reward float64 `json:"reward"`
}

// TokenWeight: 单个 token 的权重视图。
type TokenWeight struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// DialogueTurn: 对话中的一轮发言。
type DialogueTurn struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}
