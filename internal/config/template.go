package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可运行的默认配置模板：
// 输入为 ./data 目录，快照写入 ./out/model.json；选项包含全部键。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = []string{"data"}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "extensions": [".jsonl"]
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "max_line_bytes": 4194304,
  "disallow_unknown_fields": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}

// DefaultEnvTemplate 返回 .env 模板（注释形式列出全部键）。
func DefaultEnvTemplate() string {
	return `# rlhfloop 环境变量（优先级：默认 < config.json < ENV < CLI）
# RLHF_LOOP_CONFIG_FILE=config.json
# RLHF_LOOP_CONFIG_JSON=
# RLHF_LOOP_INPUTS=data
# RLHF_LOOP_LEARNING_RATE=0.05
# RLHF_LOOP_TRAIN_RATIO=0.8
# RLHF_LOOP_MODEL=model.json
# RLHF_LOOP_TOP_TOKENS=10
# RLHF_LOOP_LOG_LEVEL=info
# RLHF_LOOP_LOG_DIR=logs
# RLHF_LOOP_COMPONENTS_READER=fs
# RLHF_LOOP_COMPONENTS_DECODER=jsonl
# RLHF_LOOP_COMPONENTS_WRITER=fs
# RLHF_LOOP_OPTIONS_WRITER_JSON={"output_dir":"out"}
`
}
