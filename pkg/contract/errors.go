package contract

import "errors"

// 最小错误分类（哨兵）。调用方使用 errors.Is 判断。
var (
	// ErrMalformedRecord: 偏好文件中某行无法解析或缺少必需字段；该来源整体失败。
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidInput: 调用参数或配置越界（如学习率 <= 0、比例不在 [0,1]）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrSnapshotInvalid: 模型快照格式或版本不受支持。
	ErrSnapshotInvalid = errors.New("snapshot invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
