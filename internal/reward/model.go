package reward

import (
	"sort"
	"strings"

	"rlhfloop/pkg/contract"
)

// DefaultTokenLimit 为 MostInformativeTokens 的默认条数。
const DefaultTokenLimit = 10

// 打分期去除的首尾标点。
const scoreTrimSet = ".,!?"

// Model: 基于 token 计数的线性奖励模型。
// - 权重表只增不删；值原地累加；
// - order 记录 token 首次出现的顺序，用于同分时的稳定排序；
// - 不加锁：一个 Model 只归属一个 feedback.Loop。
type Model struct {
	weights map[string]float64
	order   []string
}

// New 返回未训练（空权重）的模型。
func New() *Model {
	return &Model{weights: make(map[string]float64)}
}

// Train 以感知机式规则更新权重：
// w[tok] += lr * dir * count，其中 chosen 行 dir=+1，其余 dir=-1。
// 多次调用累加（在线训练语义），不做归一化与正则。
func (m *Model) Train(batch contract.TrainingBatch, lr float64) {
	n := len(batch.Labels)
	if len(batch.Features) < n {
		n = len(batch.Features)
	}
	for i := 0; i < n; i++ {
		dir := -1.0
		if batch.Labels[i] == contract.LabelChosen {
			dir = 1.0
		}
		counts := batch.Features[i]
		for _, tok := range sortedTokens(counts) {
			m.add(tok, lr*dir*float64(counts[tok]))
		}
	}
}

func (m *Model) add(tok string, delta float64) {
	if _, ok := m.weights[tok]; !ok {
		m.order = append(m.order, tok)
	}
	m.weights[tok] += delta
}

// Score 计算一段补全的奖励分。
// 打分期分词与训练期不同：按空白切分，仅去除首尾的 ".,!?"，未知 token 计 0。
func (m *Model) Score(text string) float64 {
	var s float64
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		s += m.weights[strings.Trim(raw, scoreTrimSet)]
	}
	return s
}

// Weight 返回单个 token 的权重（未知为 0）与是否存在。
func (m *Model) Weight(tok string) (float64, bool) {
	w, ok := m.weights[tok]
	return w, ok
}

// Size 返回已学习的 token 数。
func (m *Model) Size() int { return len(m.order) }

// Trained 报告模型是否已离开初始空状态。
func (m *Model) Trained() bool { return len(m.order) > 0 }

// MostInformativeTokens 返回权重最高的 limit 个 token（降序；同分按首次出现顺序）。
// limit <= 0 取 DefaultTokenLimit。
func (m *Model) MostInformativeTokens(limit int) []contract.TokenWeight {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	all := m.Weights()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Weight > all[j].Weight })
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Weights 按首次出现顺序返回全部权重的拷贝。
func (m *Model) Weights() []contract.TokenWeight {
	out := make([]contract.TokenWeight, 0, len(m.order))
	for _, tok := range m.order {
		out = append(out, contract.TokenWeight{Token: tok, Weight: m.weights[tok]})
	}
	return out
}

// Rank 对候选逐个打分并按奖励降序稳定排序；同分保持输入顺序。
func (m *Model) Rank(candidates []string) []contract.ScoredCandidate {
	out := make([]contract.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, contract.ScoredCandidate{Text: c, Reward: m.Score(c)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Reward > out[j].Reward })
	return out
}

func sortedTokens(c contract.TokenCounts) []string {
	toks := make([]string, 0, len(c))
	for tok := range c {
		toks = append(toks, tok)
	}
	sort.Strings(toks)
	return toks
}
