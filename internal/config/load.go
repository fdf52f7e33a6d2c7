package config

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"rlhfloop/internal/feedback"
)

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "RLHF_LOOP_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		LearningRate: feedback.DefaultLearningRate,
		TrainRatio:   feedback.DefaultTrainRatio,
		Model:        "model.json",
		TopTokens:    10,
		Logging:      Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:  "fs",
			Decoder: "jsonl",
			Writer:  "fs",
		},
	}
}

// Unset 返回一个“全部未设置”的覆盖层（TrainRatio=-1）。
func Unset() Config {
	return Config{TrainRatio: -1}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 未出现的 train_ratio 保持 -1（未设置）。
func LoadJSON(fs afero.Fs, path string, raw []byte) (Config, error) {
	cfg := Unset()
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := fs.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.LearningRate != 0 {
		out.LearningRate = over.LearningRate
	}
	// TrainRatio 的 0 具有语义，>=0 即视为存在。
	if over.TrainRatio >= 0 {
		out.TrainRatio = over.TrainRatio
	}
	if s := strings.TrimSpace(over.Model); s != "" {
		out.Model = s
	}
	if over.TopTokens != 0 {
		out.TopTokens = over.TopTokens
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，前缀 RLHF_LOOP_）。
// 支持：INPUTS, LEARNING_RATE, TRAIN_RATIO, MODEL, TOP_TOKENS, LOG_LEVEL, LOG_DIR,
// COMPONENTS_{READER,DECODER,WRITER}, OPTIONS_{READER,DECODER,WRITER}_JSON。
// 数值解析失败返回错误，避免静默忽略。
func EnvOverlay(environ []string) (Config, error) {
	over := Unset()
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "LEARNING_RATE":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return over, errors.Wrapf(err, "%sLEARNING_RATE", EnvPrefix)
			}
			over.LearningRate = v
		case "TRAIN_RATIO":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return over, errors.Wrapf(err, "%sTRAIN_RATIO", EnvPrefix)
			}
			over.TrainRatio = v
		case "MODEL":
			over.Model = val
		case "TOP_TOKENS":
			v, err := strconv.Atoi(val)
			if err != nil {
				return over, errors.Wrapf(err, "%sTOP_TOKENS", EnvPrefix)
			}
			over.TopTokens = v
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_DECODER_JSON":
			over.Options.Decoder = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		default:
			// CONFIG_FILE / CONFIG_JSON 由入口处理；其他键忽略
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
