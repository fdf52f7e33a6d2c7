package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs 偏好数据来源（文件/目录/"-"）。
	Inputs       []string `json:"inputs"`
	LearningRate float64  `json:"learning_rate"`
	// TrainRatio: 0 有语义（全部用于验证），覆盖层以 -1 表示未设置。
	TrainRatio float64 `json:"train_ratio"`
	// Model: 模型快照产物 id（相对 writer.output_dir）。
	Model string `json:"model"`
	// TopTokens: 训练后展示的最具信息量 token 数。
	TopTokens int     `json:"top_tokens"`
	Logging   Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader  string `json:"reader"`
	Decoder string `json:"decoder"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader  json.RawMessage `json:"reader"`
	Decoder json.RawMessage `json:"decoder"`
	Writer  json.RawMessage `json:"writer"`
}
