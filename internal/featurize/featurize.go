package featurize

import (
	"math"
	"regexp"
	"strings"

	"rlhfloop/pkg/contract"
)

// 训练期分词：小写后取最长的单词字符串（字母/数字/下划线）。
var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// CountTokens 统计文本中各 token 的出现次数。空文本返回空映射（非 nil）。
func CountTokens(text string) contract.TokenCounts {
	counts := contract.TokenCounts{}
	for _, tok := range wordRE.FindAllString(strings.ToLower(text), -1) {
		counts[tok]++
	}
	return counts
}

// BuildBatch 将偏好样本转换为 token 计数特征。
// 每个样本产出两行：先 chosen（标签 1），后 rejected（标签 0）；保持输入顺序。
func BuildBatch(examples []contract.PreferenceExample) contract.TrainingBatch {
	n := 2 * len(examples)
	b := contract.TrainingBatch{
		Features: make([]contract.TokenCounts, 0, n),
		Labels:   make([]contract.Label, 0, n),
		Tags:     make([]string, 0, n),
	}
	for _, ex := range examples {
		b.Features = append(b.Features, CountTokens(ex.Chosen))
		b.Labels = append(b.Labels, contract.LabelChosen)
		b.Tags = append(b.Tags, contract.TagChosen)

		b.Features = append(b.Features, CountTokens(ex.Rejected))
		b.Labels = append(b.Labels, contract.LabelRejected)
		b.Tags = append(b.Tags, contract.TagRejected)
	}
	return b
}

// Split 按位置切分：[0, cutoff) 为训练集，[cutoff, n) 为验证集，cutoff = floor(n*ratio)。
// 不打乱、不复制底层元素；ratio 越界时截断到 [0,1]。
func Split(data []contract.PreferenceExample, ratio float64) (train, val []contract.PreferenceExample) {
	n := len(data)
	cutoff := int(math.Floor(float64(n) * ratio))
	if cutoff < 0 {
		cutoff = 0
	}
	if cutoff > n {
		cutoff = n
	}
	return data[:cutoff:cutoff], data[cutoff:]
}
