package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志器：单行 JSON，字段 comp/stage/code/dur_ms/count/file_id/kv。
// 底层为 zap JSON core；nil *Logger 合法且静默。
type Logger struct {
	z    *zap.Logger
	sink io.Closer
}

// NewLogger 写入默认目录 logs（10MiB 轮转）。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerIn("logs", corrID, level)
}

// NewLoggerIn 写入指定目录（10MiB 轮转）。
func NewLoggerIn(dir, corrID, level string) *Logger {
	rf := NewRotatingFile(dir, 10*1024*1024)
	l := newLogger(rf, corrID, level)
	l.sink = rf
	return l
}

// NewLoggerTo 写入任意 io.Writer（测试或 stderr）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return newLogger(zapcore.AddSync(w), corrID, level)
}

func newLogger(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(ParseLevel(level)))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel 解析 debug|info|warn|error，其他值按 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// event 为标准事件结构。
type event struct {
	comp   string
	stage  string // start|finish|error
	code   string
	durMS  int64
	count  int64
	fileID string
	msg    string
	kv     map[string]string
}

func (l *Logger) log(lv zapcore.Level, ev event) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, ev.msg)
	if ce == nil {
		return
	}
	fields := []zap.Field{zap.String("comp", ev.comp), zap.String("stage", ev.stage)}
	if ev.code != "" {
		fields = append(fields, zap.String("code", ev.code))
	}
	if ev.durMS != 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.durMS))
	}
	if ev.count != 0 {
		fields = append(fields, zap.Int64("count", ev.count))
	}
	if ev.fileID != "" {
		fields = append(fields, zap.String("file_id", ev.fileID))
	}
	if len(ev.kv) > 0 {
		fields = append(fields, zap.Any("kv", ev.kv))
	}
	ce.Write(fields...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, event{comp: comp, stage: "start", msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	l.log(zapcore.InfoLevel, event{comp: comp, stage: "start", fileID: fileID, msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "")
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, event{comp: comp, stage: "error", code: code, durMS: dur, msg: msg, fileID: fileID})
}

// Warn 记录 warn 事件（附带键值）。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(zapcore.WarnLevel, event{comp: comp, stage: "finish", msg: msg, kv: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, event{comp: comp, stage: "finish", durMS: time.Since(start).Milliseconds(), count: count, msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅 level=debug 生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, event{comp: comp, stage: "start", fileID: fileID, msg: msg, kv: kv})
}

// Sync 刷新并关闭底层文件（若有）。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, event{comp: t.comp, stage: "finish", durMS: time.Since(t.t0).Milliseconds(), count: count, fileID: t.fileID, msg: msg, kv: kv})
}
