package testdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "rlhfloop/internal/config"
	"rlhfloop/internal/diag"
	"rlhfloop/internal/feedback"
	"rlhfloop/internal/reward"
)

// baseConfig 基于 config/basic.json 构造运行配置，输出重定向到 outDir。
func baseConfig(t *testing.T, outDir string) cfgpkg.Config {
	t.Helper()
	over, err := cfgpkg.LoadJSON(nil, "", mustRead(t, filepath.Join("config", "basic.json")))
	require.NoError(t, err)
	cfg := cfgpkg.Merge(cfgpkg.Defaults(), over)
	cfg.Inputs = []string{"preferences.jsonl"}
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":true}`, outDir))
	return cfg
}

func mustRead(t *testing.T, p string) []byte {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return b
}

func newLoop(t *testing.T, cfg cfgpkg.Config, onEval func(float64), logger *diag.Logger) *feedback.Loop {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	require.NoError(t, err)
	set.OnEvaluate = onEval
	loop, err := feedback.New(set, comp, logger)
	require.NoError(t, err)
	return loop
}

// TestEndToEnd: 读取 JSONL → 训练/验证 → 保存快照 → 另一循环加载后打分一致。
func TestEndToEnd(t *testing.T) {
	out := t.TempDir()
	cfg := baseConfig(t, out)
	var logs bytes.Buffer
	var accs []float64
	loop := newLoop(t, cfg, func(a float64) { accs = append(accs, a) }, diag.NewLoggerTo(&logs, "e2e", "debug"))

	data, err := loop.LoadData(context.Background())
	require.NoError(t, err)
	// 空行被跳过
	require.Len(t, data, 12)
	assert.Equal(t, "How can I be more productive in the morning?", data[0].Prompt)

	acc := loop.Train(data)
	require.Len(t, accs, 1)
	assert.Equal(t, acc, accs[0])
	assert.True(t, acc >= 0 && acc <= 1)
	st := loop.LastStats()
	assert.Equal(t, 9, st.Train)
	assert.Equal(t, 3, st.Validation)

	require.NoError(t, loop.SaveModel(context.Background(), "models/basic.json"))
	snapPath := filepath.Join(out, "models", "basic.json")
	_, err = os.Stat(snapPath)
	require.NoError(t, err)

	other := newLoop(t, cfg, nil, nil)
	require.NoError(t, other.LoadModel(context.Background(), snapPath))
	cands := []string{
		"Start with a clear plan and prioritize tasks that matter most.",
		"Skip breakfast and push through all meetings without breaks.",
	}
	assert.Equal(t, loop.ScoreCandidates("", cands), other.ScoreCandidates("", cands))
	ranked := other.ScoreCandidates("How can I be more productive in the morning?", cands)
	assert.Equal(t, cands[0], ranked[0].Text)
	assert.Greater(t, ranked[0].Reward, ranked[1].Reward)

	m := reward.Margins(loop.Model(), data[st.Train:])
	assert.Equal(t, 3, m.Count)
	assert.True(t, m.Min <= m.Median && m.Median <= m.Max)
	assert.Contains(t, logs.String(), `"comp":"decoder"`)
	assert.Contains(t, logs.String(), `"file_id":"preferences.jsonl"`)
}

// TestDeterministicSnapshots: 同一数据两次独立训练得到字节一致的快照。
func TestDeterministicSnapshots(t *testing.T) {
	cfg := baseConfig(t, t.TempDir())
	var snaps [][]byte
	for i := 0; i < 2; i++ {
		loop := newLoop(t, cfg, nil, nil)
		data, err := loop.LoadData(context.Background())
		require.NoError(t, err)
		loop.Train(data)
		var buf bytes.Buffer
		require.NoError(t, reward.EncodeSnapshot(&buf, loop.Model()))
		snaps = append(snaps, buf.Bytes())
	}
	assert.Equal(t, string(snaps[0]), string(snaps[1]))
}
