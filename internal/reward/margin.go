package reward

import (
	"github.com/montanaflynn/stats"

	"rlhfloop/pkg/contract"
)

// MarginReport 汇总 Score(chosen) - Score(rejected) 的分布。
// Agreement 为 margin > 0 的样本占比（即打分期口径下的成对排序正确率）。
type MarginReport struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Agreement float64 `json:"agreement"`
}

// Margins 在给定样本上计算打分间隔统计。空输入返回零值报告。
func Margins(m *Model, examples []contract.PreferenceExample) MarginReport {
	if len(examples) == 0 {
		return MarginReport{}
	}
	data := make(stats.Float64Data, 0, len(examples))
	agree := 0
	for _, ex := range examples {
		d := m.Score(ex.Chosen) - m.Score(ex.Rejected)
		if d > 0 {
			agree++
		}
		data = append(data, d)
	}
	rep := MarginReport{Count: len(data), Agreement: float64(agree) / float64(len(data))}
	// 非空输入下 stats 不会返回错误
	rep.Mean, _ = stats.Mean(data)
	rep.Median, _ = stats.Median(data)
	rep.Min, _ = stats.Min(data)
	rep.Max, _ = stats.Max(data)
	return rep
}
