package main

import (
	"context"
	"fmt"
	"time"

	"rlhfloop/internal/config"
	"rlhfloop/internal/diag"
	"rlhfloop/internal/featurize"
	"rlhfloop/internal/feedback"
	"rlhfloop/internal/reward"
	"rlhfloop/pkg/contract"
)

type trainArgs struct {
	Inputs       []string `arg:"positional" help:"preference sources: files, directories or - for stdin"`
	Config       string   `arg:"--config" help:"config file (JSON); defaults to ./config.json when present"`
	LearningRate float64  `arg:"--lr" help:"learning rate (> 0)"`
	TrainRatio   float64  `arg:"--train-ratio" help:"share of examples used for training, within [0,1]"`
	Model        string   `arg:"--model" help:"snapshot artifact id, relative to the writer output_dir"`
	Top          int      `arg:"--top" help:"number of most informative tokens to print"`
	LogLevel     string   `arg:"--log-level" help:"debug|info|warn|error"`
	NoStatus     bool     `arg:"--no-status" help:"disable terminal status lines on stderr"`
}

func (t *trainArgs) overlay() config.Config {
	over := config.Unset()
	over.Inputs = t.Inputs
	over.LearningRate = t.LearningRate
	over.TrainRatio = t.TrainRatio
	over.Model = t.Model
	over.TopTokens = t.Top
	over.Logging.Level = t.LogLevel
	return over
}

func (t *trainArgs) handle(a *app) int {
	cfg, code := a.loadConfig(t.Config, t.overlay())
	if code != exitOK {
		return code
	}
	if err := preflightCheckOutputDir(a.fs, writerOutputDir(cfg)); err != nil {
		_, code := a.configFail("输出目录不可写或无法创建", err)
		return code
	}
	comp, set, err := config.Assemble(cfg)
	if err != nil {
		_, code := a.configFail("装配失败", err)
		return code
	}
	set.OnEvaluate = func(acc float64) {
		fprintf(a.stdout, "Validation accuracy: %.2f%%\n", acc*100)
	}
	loop, err := feedback.New(set, comp, a.logger)
	if err != nil {
		_, code := a.configFail("装配失败", err)
		return code
	}

	term := diag.NewTerminal(a.stderr, !t.NoStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(len(set.Sources), set.LearningRate, set.TrainRatio)

	ctx := context.Background()
	timer := a.logger.Start("cli", "train")
	data, err := loop.LoadData(ctx)
	if err != nil {
		return a.runFail("loader", err)
	}
	fprintf(a.stdout, "Loaded %d preference examples\n", len(data))
	loop.Train(data)
	if err := loop.SaveModel(ctx, contract.ArtifactID(cfg.Model)); err != nil {
		return a.runFail("writer", err)
	}
	fprintf(a.stdout, "Saved model (%d tokens) to %s\n", loop.Model().Size(), cfg.Model)

	printTopTokens(a, loop.Model(), cfg.TopTokens)
	if _, val := featurize.Split(data, set.TrainRatio); len(val) > 0 {
		printMargins(a, reward.Margins(loop.Model(), val))
	}

	timer.Finish("train", int64(len(data)))
	diag.IncOp("cli", "finish", "success")
	diag.ObserveDuration("cli", "finish", time.Since(a.start).Milliseconds())
	term.RunFinish(true, time.Since(a.start))
	return exitOK
}

func printTopTokens(a *app, m *reward.Model, limit int) {
	top := m.MostInformativeTokens(limit)
	if len(top) == 0 {
		return
	}
	fprintf(a.stdout, "Most informative tokens:\n")
	for _, tw := range top {
		fprintf(a.stdout, "  %+.3f %s\n", tw.Weight, tw.Token)
	}
}

func printMargins(a *app, r reward.MarginReport) {
	fprintf(a.stdout, "Validation margins: n=%d mean=%s median=%s min=%s max=%s agreement=%.2f%%\n",
		r.Count, fmtSigned(r.Mean), fmtSigned(r.Median), fmtSigned(r.Min), fmtSigned(r.Max), r.Agreement*100)
}

func fmtSigned(v float64) string { return fmt.Sprintf("%+.3f", v) }
