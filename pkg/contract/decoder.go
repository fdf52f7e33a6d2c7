package contract

import (
	"context"
	"io"
)

// Decoder: 将单个来源的字节流解码为偏好样本。
// 约束：
//  1. 保持行序；
//  2. 任一记录不合法即返回 ErrMalformedRecord（包装行号），不返回部分结果；
//  3. 字段值在返回前经过 CleanText。
type Decoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader) ([]PreferenceExample, error)
}
