package reward

import "rlhfloop/pkg/contract"

// Evaluate 计算模型在带标签批上的分类准确率。
// 预测：Σ w[tok]*count >= 0 判为 1（零分归正类），否则 0。空批返回 0。
func Evaluate(m *Model, batch contract.TrainingBatch) float64 {
	n := len(batch.Labels)
	if n == 0 {
		return 0.0
	}
	correct := 0
	for i, label := range batch.Labels {
		var counts contract.TokenCounts
		if i < len(batch.Features) {
			counts = batch.Features[i]
		}
		predicted := contract.LabelRejected
		if m.margin(counts) >= 0 {
			predicted = contract.LabelChosen
		}
		if predicted == label {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// margin 为特征行的线性得分；按 token 字典序累加以保证浮点结果可复现。
func (m *Model) margin(counts contract.TokenCounts) float64 {
	var s float64
	for _, tok := range sortedTokens(counts) {
		s += m.weights[tok] * float64(counts[tok])
	}
	return s
}
