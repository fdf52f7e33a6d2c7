package main

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"rlhfloop/internal/config"
	"rlhfloop/internal/diag"
	"rlhfloop/internal/feedback"
	djsonl "rlhfloop/plugins/decoder/jsonl"
	rfs "rlhfloop/plugins/reader/filesystem"
)

// 演示参数与候选回复。
const (
	demoLearningRate = 0.1
	demoTrainRatio   = 0.7
	demoPrompt       = "How can I be more productive in the morning?"
	demoSamplePath   = "/sample/preferences.jsonl"
)

var demoCandidates = []string{
	"Start with a clear plan and prioritize tasks that matter most.",
	"Productivity happens when the sun rises if you simply think fast.",
	"Skip breakfast and push through all meetings without breaks.",
}

type demoArgs struct {
	Data     string `arg:"--data" help:"preference file; defaults to the bundled sample"`
	LogLevel string `arg:"--log-level" help:"debug|info|warn|error"`
	NoStatus bool   `arg:"--no-status" help:"disable terminal status lines on stderr"`
}

func (d *demoArgs) handle(a *app) int {
	over := config.Unset()
	over.Logging.Level = d.LogLevel
	cfg, code := a.loadConfig("", over)
	if code != exitOK {
		return code
	}
	// 内置样本放入内存文件系统，与磁盘数据走同一 Reader
	fs := afero.Fs(afero.NewMemMapFs())
	source := demoSamplePath
	if d.Data != "" {
		fs = a.fs
		source = d.Data
	} else if err := afero.WriteFile(fs, demoSamplePath, samplePreferences, 0o644); err != nil {
		return a.runFail("demo", err)
	}
	comp := feedback.Components{
		Reader:  rfs.NewWithFs(fs, nil, nil),
		Decoder: djsonl.New(nil),
	}
	loop, err := feedback.New(feedback.Config{
		Sources:      []string{source},
		LearningRate: demoLearningRate,
		TrainRatio:   demoTrainRatio,
		OnEvaluate: func(acc float64) {
			fprintf(a.stdout, "Validation accuracy: %.2f%%\n", acc*100)
		},
	}, comp, a.logger)
	if err != nil {
		_, code := a.configFail("装配失败", err)
		return code
	}

	term := diag.NewTerminal(a.stderr, !d.NoStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(1, demoLearningRate, demoTrainRatio)

	data, err := loop.LoadData(context.Background())
	if err != nil {
		return a.runFail("loader", err)
	}
	fprintf(a.stdout, "Loaded %d preference examples\n", len(data))
	loop.Train(data)
	printRanking(a, loop.ScoreCandidates(demoPrompt, demoCandidates))
	printTopTokens(a, loop.Model(), cfg.TopTokens)
	term.RunFinish(true, time.Since(a.start))
	return exitOK
}
