package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"rlhfloop/internal/feedback"
	"rlhfloop/pkg/contract"
	"rlhfloop/pkg/registry"
)

func invalid(format string, args ...interface{}) error {
	return errors.Wrap(contract.ErrInvalidInput, "config: "+fmt.Sprintf(format, args...))
}

// Validate 对最小必要边界做静态校验。空 inputs 表示 STDIN。
func Validate(cfg Config) error {
	dash := false
	for _, r := range cfg.Inputs {
		s := strings.TrimSpace(r)
		if s == "" {
			return invalid("input path cannot be empty")
		}
		if s == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other inputs")
	}
	if math.IsNaN(cfg.LearningRate) || math.IsInf(cfg.LearningRate, 0) || cfg.LearningRate <= 0 {
		return invalid("learning_rate must be > 0, got %v", cfg.LearningRate)
	}
	if math.IsNaN(cfg.TrainRatio) || cfg.TrainRatio < 0 || cfg.TrainRatio > 1 {
		return invalid("train_ratio must be within [0,1], got %v", cfg.TrainRatio)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return invalid("model artifact id empty")
	}
	if cfg.TopTokens < 0 {
		return invalid("top_tokens must be >= 0")
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Components.Decoder); registry.Decoder[name] == nil {
		return invalid("decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与循环配置。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (feedback.Components, feedback.Config, error) {
	if err := Validate(cfg); err != nil {
		return feedback.Components{}, feedback.Config{}, err
	}
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	dn := effName(cfg.Components.Decoder, d.Components.Decoder)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return feedback.Components{}, feedback.Config{}, errors.WithMessagef(err, "reader %s options", rn)
	}
	dec, err := registry.Decoder[dn](cfg.Options.Decoder)
	if err != nil {
		return feedback.Components{}, feedback.Config{}, errors.WithMessagef(err, "decoder %s options", dn)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return feedback.Components{}, feedback.Config{}, errors.WithMessagef(err, "writer %s options", wn)
	}

	comp := feedback.Components{Reader: r, Decoder: dec, Writer: w}
	set := feedback.Config{
		Sources:      cloneStrings(cfg.Inputs),
		LearningRate: cfg.LearningRate,
		TrainRatio:   cfg.TrainRatio,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
