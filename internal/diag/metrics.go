package diag

import (
	"sort"
	"strings"
	"sync"
)

// 进程内计数器（无导出端点）。名称形如：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计毫秒）
var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	add("op_total", 1, comp, stage, result)
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	add("error_total", 1, comp, code)
}

// ObserveDuration 累计阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add("op_duration_ms", durMS, comp, stage)
}

// Counters 返回全部计数器的拷贝（键为 name{label,...}）。
func Counters() map[string]int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make(map[string]int64, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}

// CounterKeys 返回排序后的计数器键，便于稳定输出。
func CounterKeys() []string {
	c := Counters()
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func add(name string, v int64, labels ...string) {
	key := name + "{" + strings.Join(labels, ",") + "}"
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}
