package diag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"rlhfloop/pkg/contract"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line=%s", sc.Text())
		out = append(out, m)
	}
	return out
}

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	require.NoError(t, w.WriteLine([]byte("first line that is very long")))
	require.NoError(t, w.WriteLine([]byte("second")))
	require.NoError(t, w.Close())
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2)
}

func TestRotatingFileNames(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("xxxxxxxxxxxxxxxxxx\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Sync())
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == "rlhfloop-current.log" {
			hasCurrent = true
		} else if strings.HasPrefix(e.Name(), "rlhfloop-") && strings.HasSuffix(e.Name(), ".log") {
			hasRotated = true
		}
	}
	assert.True(t, hasCurrent)
	assert.True(t, hasRotated)
}

func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	assert.Equal(t, int64(10*1024*1024), w.maxBytes)
	require.NoError(t, w.WriteLine([]byte("a")))
	require.NoError(t, w.Close())
	// f==nil 时 rotate 退化为打开
	require.NoError(t, w.rotate())
	assert.NotNil(t, w.f)
	require.NoError(t, w.Close())
}

func TestCounters(t *testing.T) {
	IncOp("loader", "finish", "success")
	IncOp("loader", "finish", "success")
	IncError("loader", string(CodeIO))
	ObserveDuration("train", "finish", 7)
	c := Counters()
	assert.GreaterOrEqual(t, c["op_total{loader,finish,success}"], int64(2))
	assert.GreaterOrEqual(t, c["error_total{loader,io}"], int64(1))
	assert.GreaterOrEqual(t, c["op_duration_ms{train,finish}"], int64(7))
	keys := CounterKeys()
	assert.True(t, len(keys) >= 3)
	for i := 1; i < len(keys); i++ {
		assert.True(t, keys[i-1] <= keys[i])
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{pkgerrors.Wrap(context.DeadlineExceeded, "load"), CodeCancel},
		{pkgerrors.Wrapf(contract.ErrMalformedRecord, "a.jsonl:3"), CodeProtocol},
		{contract.ErrSnapshotInvalid, CodeProtocol},
		{pkgerrors.WithMessage(contract.ErrInvalidInput, "lr"), CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{contract.ErrInvariantViolation, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "err=%v", tc.err)
	}
}

func TestNowUTC(t *testing.T) {
	_, err := time.Parse(time.RFC3339, NowUTC())
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "corr-1", "debug")
	l.Start("loader", "load sources").Finish("loaded", 3)
	l.StartWith("decoder", "decode", "a.jsonl").FinishKV("decoded", 2, map[string]string{"lines": "2"})
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWith("decoder", string(CodeProtocol), "bad line", &start, "b.jsonl")
	l.DebugStart("train", "row", "", map[string]string{"tag": "chosen"})
	l.Warn("train", "empty validation set", nil)
	l.InfoFinish("train", "trained", time.Now(), 8)

	evs := decodeLines(t, &buf)
	require.Len(t, evs, 8)
	for _, ev := range evs {
		assert.Equal(t, "corr-1", ev["corr_id"])
		assert.NotEmpty(t, ev["ts"])
	}
	assert.Equal(t, "start", evs[0]["stage"])
	assert.Equal(t, "loader", evs[0]["comp"])
	assert.Equal(t, "finish", evs[1]["stage"])
	assert.EqualValues(t, 3, evs[1]["count"])
	assert.Equal(t, "a.jsonl", evs[3]["file_id"])
	assert.Equal(t, map[string]interface{}{"lines": "2"}, evs[3]["kv"])
	assert.Equal(t, "error", evs[4]["stage"])
	assert.Equal(t, "error", evs[4]["level"])
	assert.Equal(t, "protocol", evs[4]["code"])
	assert.Equal(t, "b.jsonl", evs[4]["file_id"])
	assert.Equal(t, "debug", evs[5]["level"])
	assert.Equal(t, "warn", evs[6]["level"])
	// 零值字段省略
	_, hasCode := evs[0]["code"]
	assert.False(t, hasCode)
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", "warn")
	l.Start("comp", "msg").Finish("ok", 1)
	l.DebugStart("comp", "msg", "f", nil)
	assert.Zero(t, buf.Len())
	l.Error("comp", "io", "boom", nil)
	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestLoggerNilSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Start("c", "m").Finish("x", 0)
		l.Error("c", "io", "m", nil)
		l.Warn("c", "m", nil)
		l.InfoFinish("c", "m", time.Now(), 0)
		var tn *Timer
		tn.Finish("x", 0)
		(&Timer{}).Finish("x", 0)
		assert.NoError(t, l.Sync())
	})
}

func TestLoggerToDir(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerIn(dir, "corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	require.NoError(t, l.Sync())
	b, err := os.ReadFile(filepath.Join(dir, "rlhfloop-current.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"corr_id":"corr"`)
}

func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	require.False(t, term.isTTY)
	term.RunStart(2, 0.05, 0.8)
	term.SourceLoaded("data/prefs.jsonl", 1200)
	term.SourceLoaded("data/more.jsonl", 34)
	term.TrainFinish(987, 247, 0.75, true)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, "[run] 来源=2 | lr=0.05 | train_ratio=0.8")
	assert.Contains(t, out, "[load] prefs.jsonl | 样本 1,200 | 累计 1,200")
	assert.Contains(t, out, "[load] more.jsonl | 样本 34 | 累计 1,234")
	assert.Contains(t, out, "[train] 训练 987 | 验证 247 | 准确率 75.00%")
	assert.Contains(t, out, "[ok] 全部完成 | 来源 2 | 样本 1,234 | 总用时 41.3s")
}

func TestTerminalTTYInlineAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(1, 0.1, 1)
	term.SourceLoaded("/a/b/c/longfilename.jsonl", 3)
	assert.Contains(t, sb.String(), "\r[load]")
	term.TrainFinish(3, 0, 0, false)
	out := sb.String()
	assert.Contains(t, out, "准确率 n/a")
	idx := strings.LastIndex(out, "[train]")
	assert.True(t, strings.HasSuffix(out[:idx], "\n"))
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = false
	term.RunStart(1, 0.05, 0.8)
	assert.False(t, term.enabled)
	assert.NotPanics(t, func() {
		term.SourceLoaded("a", 0)
		term.TrainFinish(0, 0, 0, false)
		term.RunFinish(true, 0)
	})
}

func TestTerminalInlineWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = true
	term.SourceLoaded("f.jsonl", 2)
	assert.False(t, term.enabled)
}

func TestTerminalCIEnvAndNil(t *testing.T) {
	t.Setenv("CI", "true")
	var sb strings.Builder
	assert.False(t, NewTerminal(&sb, true).isTTY)
	var tn *Terminal
	assert.NotPanics(t, func() {
		tn.RunStart(1, 0, 0)
		tn.SourceLoaded("a", 1)
		tn.TrainFinish(0, 0, 0, false)
		tn.RunFinish(true, 0)
	})
	SetTerminal(nil)
	assert.Nil(t, GetTerminal())
	SetTerminal(NewTerminal(os.Stderr, false))
	assert.NotNil(t, GetTerminal())
	SetTerminal(nil)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", shortenBase("x", 0))
	s := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.jsonl", 10)
	assert.Equal(t, 10, visLen(s))
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.Equal(t, "0ms", formatDur(0))
	assert.Equal(t, "1.5s", formatDur(1500*time.Millisecond))
}
