package contract

import (
	"context"
	"io"
)

// Reader: 偏好数据来源抽象（文件/目录/STDIN）。
// 约束：
//  1. 按 sources 给定顺序逐个回调，目录内按字典序；
//  2. 同一时刻只交出一个 ReadCloser，yield 负责关闭；
//  3. 不做解码，仅提供字节流；
//  4. 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, sources []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
