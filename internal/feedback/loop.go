package feedback

import (
	"context"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"rlhfloop/internal/diag"
	"rlhfloop/internal/featurize"
	"rlhfloop/internal/reward"
	"rlhfloop/pkg/contract"
)

// 默认训练参数。
const (
	DefaultLearningRate = 0.05
	DefaultTrainRatio   = 0.8
)

// Components 聚合反馈循环所需的原子组件。Writer 仅 SaveModel 需要。
type Components struct {
	Reader  contract.Reader
	Decoder contract.Decoder
	Writer  contract.Writer
}

// Config 循环配置（构造后只读）。
type Config struct {
	// Sources 偏好数据来源；空或 ["-"] 表示 STDIN。
	Sources      []string
	LearningRate float64
	// TrainRatio ∈ [0,1]：前 floor(n*ratio) 条用于训练，其余用于验证。
	TrainRatio float64
	// OnEvaluate 在验证集非空时每次 Train 至多调用一次。
	OnEvaluate func(accuracy float64)
}

// Stats 最近一次 Train 的划分与结果。
type Stats struct {
	Examples   int
	Train      int
	Validation int
	Accuracy   float64
	Evaluated  bool
}

// Loop 持有一份配置、一组组件与唯一的奖励模型；同步、非并发安全。
type Loop struct {
	cfg    Config
	comp   Components
	model  *reward.Model
	logger *diag.Logger
	last   Stats
}

// New 校验配置并创建循环；logger 可为 nil。
func New(cfg Config, comp Components, logger *diag.Logger) (*Loop, error) {
	lr := cfg.LearningRate
	if math.IsNaN(lr) || math.IsInf(lr, 0) || lr <= 0 {
		return nil, errors.Wrapf(contract.ErrInvalidInput, "learning rate %v must be > 0", lr)
	}
	r := cfg.TrainRatio
	if math.IsNaN(r) || r < 0 || r > 1 {
		return nil, errors.Wrapf(contract.ErrInvalidInput, "train ratio %v outside [0,1]", r)
	}
	if comp.Reader == nil || comp.Decoder == nil {
		return nil, errors.Wrap(contract.ErrInvalidInput, "reader and decoder are required")
	}
	cfg.Sources = append([]string(nil), cfg.Sources...)
	return &Loop{cfg: cfg, comp: comp, model: reward.New(), logger: logger}, nil
}

// Model 返回循环持有的模型。
func (l *Loop) Model() *reward.Model { return l.model }

// LastStats 返回最近一次 Train 的统计。
func (l *Loop) LastStats() Stats { return l.last }

// LoadData 按来源顺序读取并解码全部样本；任一来源失败即整体失败，不返回部分结果。
func (l *Loop) LoadData(ctx context.Context) ([]contract.PreferenceExample, error) {
	start := time.Now()
	timer := l.logger.Start("loader", "load sources")
	var all []contract.PreferenceExample
	err := l.comp.Reader.Iterate(ctx, l.cfg.Sources, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		fstart := time.Now()
		ft := l.logger.StartWith("decoder", "decode", string(fileID))
		exs, err := l.comp.Decoder.Decode(ctx, fileID, rc)
		if err != nil {
			code := diag.Classify(err)
			l.logger.ErrorWith("decoder", string(code), err.Error(), &fstart, string(fileID))
			diag.IncOp("decoder", "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError("decoder", string(code))
			}
			return err
		}
		ft.Finish("decoded", int64(len(exs)))
		diag.IncOp("decoder", "finish", "success")
		diag.GetTerminal().SourceLoaded(string(fileID), len(exs))
		all = append(all, exs...)
		return nil
	})
	if err != nil {
		code := diag.Classify(err)
		l.logger.Error("loader", string(code), err.Error(), &start)
		diag.IncOp("loader", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("loader", string(code))
		}
		return nil, err
	}
	timer.Finish("loaded", int64(len(all)))
	diag.IncOp("loader", "finish", "success")
	diag.ObserveDuration("loader", "finish", time.Since(start).Milliseconds())
	return all, nil
}

// Train 划分数据、在训练部分上训练一次，并在验证部分非空时评估。
// 验证部分为空时不评估、不回调，返回 0。
func (l *Loop) Train(data []contract.PreferenceExample) float64 {
	start := time.Now()
	train, val := featurize.Split(data, l.cfg.TrainRatio)
	l.last = Stats{Examples: len(data), Train: len(train), Validation: len(val)}

	timer := l.logger.Start("train", "perceptron update")
	batch := featurize.BuildBatch(train)
	l.model.Train(batch, l.cfg.LearningRate)
	timer.FinishKV("trained", int64(batch.Len()), map[string]string{"tokens": strconv.Itoa(l.model.Size())})
	diag.ObserveDuration("train", "finish", time.Since(start).Milliseconds())

	if len(val) == 0 {
		l.logger.Warn("evaluate", "empty validation partition", nil)
		diag.GetTerminal().TrainFinish(len(train), 0, 0, false)
		return 0
	}
	et := l.logger.Start("evaluate", "validation accuracy")
	vb := featurize.BuildBatch(val)
	acc := reward.Evaluate(l.model, vb)
	et.Finish("evaluated", int64(vb.Len()))
	l.last.Accuracy = acc
	l.last.Evaluated = true
	if l.cfg.OnEvaluate != nil {
		l.cfg.OnEvaluate(acc)
	}
	diag.GetTerminal().TrainFinish(len(train), len(val), acc, true)
	return acc
}

// ScoreCandidates 为候选回复打分并按奖励降序（稳定）排列；prompt 当前不参与打分。
func (l *Loop) ScoreCandidates(prompt string, candidates []string) []contract.ScoredCandidate {
	l.logger.DebugStart("score", "rank candidates", "", map[string]string{"prompt_len": strconv.Itoa(len(prompt)), "candidates": strconv.Itoa(len(candidates))})
	return l.model.Rank(candidates)
}

// SaveModel 将模型快照写为产物 id。
func (l *Loop) SaveModel(ctx context.Context, id contract.ArtifactID) error {
	if l.comp.Writer == nil {
		return errors.Wrap(contract.ErrInvalidInput, "writer not configured")
	}
	start := time.Now()
	timer := l.logger.StartWith("writer", "save snapshot", string(id))
	r, err := reward.SnapshotReader(l.model)
	if err == nil {
		err = l.comp.Writer.Write(ctx, id, r)
	}
	if err != nil {
		l.logger.ErrorWith("writer", string(diag.Classify(err)), err.Error(), &start, string(id))
		diag.IncOp("writer", "error", "error")
		return errors.WithMessagef(err, "save model %s", id)
	}
	timer.Finish("saved", int64(l.model.Size()))
	diag.IncOp("writer", "finish", "success")
	return nil
}

// LoadModel 通过 Reader 读取快照并替换当前模型；source 须恰好产出一个文件。
func (l *Loop) LoadModel(ctx context.Context, source string) error {
	start := time.Now()
	timer := l.logger.StartWith("snapshot", "load snapshot", source)
	var loaded *reward.Model
	err := l.comp.Reader.Iterate(ctx, []string{source}, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if loaded != nil {
			return errors.Wrapf(contract.ErrInvalidInput, "snapshot source %s yields more than one file", source)
		}
		m, err := reward.DecodeSnapshot(rc)
		if err != nil {
			return errors.WithMessagef(err, "decode %s", fileID)
		}
		loaded = m
		return nil
	})
	if err == nil && loaded == nil {
		err = errors.Wrapf(contract.ErrInvalidInput, "snapshot source %s yields no file", source)
	}
	if err != nil {
		l.logger.ErrorWith("snapshot", string(diag.Classify(err)), err.Error(), &start, source)
		return err
	}
	l.model = loaded
	timer.Finish("loaded", int64(loaded.Size()))
	return nil
}
