package main

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	cfgpkg "rlhfloop/internal/config"
	"rlhfloop/internal/diag"
)

// 退出码：0 成功；1 运行失败；2 用法错误；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitUsage  = 2
	exitConfig = 3
)

//go:embed sample/preferences.jsonl
var samplePreferences []byte

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app 为一次调用的运行上下文。
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	corrID string
	start  time.Time
	logger *diag.Logger
}

// handler 由各子命令参数结构实现。
type handler interface {
	handle(a *app) int
}

// command 描述一个子命令。
type command struct {
	Name     string
	Synopsis string
	Args     handler
}

func commands() []command {
	return []command{
		{Name: "train", Synopsis: "load preferences, train the reward model and save a snapshot", Args: &trainArgs{TrainRatio: -1}},
		{Name: "score", Synopsis: "rank candidate completions with a saved snapshot", Args: &scoreArgs{}},
		{Name: "demo", Synopsis: "run the bundled feedback loop demo", Args: &demoArgs{}},
		{Name: "init-config", Synopsis: "write config.json and .env templates (never overwrites)", Args: &initArgs{Dir: "."}},
	}
}

func run(argv []string, stdout, stderr io.Writer) int {
	a := &app{
		fs:     afero.NewOsFs(),
		stdout: stdout,
		stderr: stderr,
		corrID: uuid.New().String(),
		start:  time.Now(),
	}
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(a.fs, ".env")

	cmds := commands()
	if len(argv) == 0 {
		writeUsage(stderr, cmds)
		fprintf(stderr, "\nerror: no command provided\n")
		return exitUsage
	}
	help := false
	action := argv[0]
	if action == "help" || action == "-h" || action == "--help" {
		if len(argv) < 2 {
			writeUsage(stdout, cmds)
			return exitOK
		}
		help = true
		action = argv[1]
	}
	var cmd *command
	for i := range cmds {
		if cmds[i].Name == action {
			cmd = &cmds[i]
			break
		}
	}
	if cmd == nil {
		writeUsage(stderr, cmds)
		fprintf(stderr, "\nerror: unknown command %q\n", action)
		return exitUsage
	}
	parser, err := arg.NewParser(arg.Config{Program: prog() + " " + action}, cmd.Args)
	if err != nil {
		fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if help {
		parser.WriteHelp(stdout)
		return exitOK
	}
	if err := parser.Parse(argv[1:]); err != nil {
		if err == arg.ErrHelp {
			parser.WriteHelp(stdout)
			return exitOK
		}
		parser.WriteUsage(stderr)
		fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = a.logger.Sync() }()
	return cmd.Args.handle(a)
}

func prog() string {
	if len(os.Args) > 0 {
		return filepath.Base(os.Args[0])
	}
	return "rlhfloop"
}

func writeUsage(w io.Writer, cmds []command) {
	fprintf(w, "Usage: %s COMMAND [ARGS]\n", prog())
	fprintf(w, "Command can be one of:\n")
	for _, c := range cmds {
		fprintf(w, "  %-20s %s\n", c.Name, c.Synopsis)
	}
	fprintf(w, "  %-20s %s\n", "help COMMAND", "display help for command and exit")
}

func fprintf(w io.Writer, format string, a ...interface{}) { _, _ = fmt.Fprintf(w, format, a...) }

// loadConfig 合并 默认 < JSON（--config / RLHF_LOOP_CONFIG_FILE / ./config.json / RLHF_LOOP_CONFIG_JSON）< ENV < CLI。
// 失败时打印原因并返回 exitConfig。
func (a *app) loadConfig(path string, overCLI cfgpkg.Config) (cfgpkg.Config, int) {
	var cfgJSON []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if ok, _ := afero.Exists(a.fs, "config.json"); ok {
			path = "config.json"
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(a.fs, path, cfgJSON)
		if err != nil {
			return a.configFail("配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return a.configFail("环境变量解析失败", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		_ = a.dumpConfig(cfg)
		return a.configFail("配置校验失败", err)
	}
	a.logger = diag.NewLoggerIn(cfg.Logging.Dir, a.corrID, cfg.Logging.Level)
	a.logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count":  fmt.Sprintf("%d", len(cfg.Inputs)),
		"learning_rate": fmt.Sprintf("%g", cfg.LearningRate),
		"train_ratio":   fmt.Sprintf("%g", cfg.TrainRatio),
		"reader":        cfg.Components.Reader,
		"decoder":       cfg.Components.Decoder,
		"writer":        cfg.Components.Writer,
	})
	return cfg, exitOK
}

func (a *app) configFail(what string, err error) (cfgpkg.Config, int) {
	fprintf(a.stderr, "%s: %v\n", what, err)
	a.logger.Error("config", string(diag.Classify(err)), err.Error(), &a.start)
	return cfgpkg.Config{}, exitConfig
}

// runFail 记录运行期首错并返回 exitRun。
func (a *app) runFail(comp string, err error) int {
	code := string(diag.Classify(err))
	a.logger.Error(comp, code, err.Error(), &a.start)
	diag.IncOp(comp, "error", "error")
	if code != string(diag.CodeUnknown) {
		diag.IncError(comp, code)
	}
	fprintf(a.stderr, "运行失败: %v\n", err)
	diag.GetTerminal().RunFinish(false, time.Since(a.start))
	return exitRun
}

func (a *app) dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(a.stderr, "有效配置:\n%s\n", b)
	return nil
}

// writerOutputDir 解析 fs writer 的 output_dir；其他 writer 返回空。
func writerOutputDir(cfg cfgpkg.Config) string {
	name := cfg.Components.Writer
	if strings.TrimSpace(name) == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return ""
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	if d := strings.TrimSpace(wopts.OutputDir); d != "" {
		return d
	}
	return "."
}

// preflightCheckOutputDir: fs writer 启动前检查输出目录（或其父目录）可写。
func preflightCheckOutputDir(fs afero.Fs, dir string) error {
	if dir == "" {
		return nil
	}
	st, err := fs.Stat(dir)
	switch {
	case err == nil && !st.IsDir():
		return errors.Errorf("路径存在但不是目录: %s", dir)
	case err == nil:
		f, err := afero.TempFile(fs, dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return fs.Remove(name)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := fs.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return errors.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := afero.TempDir(fs, parent, ".wcheck-")
	if err != nil {
		return err
	}
	return fs.RemoveAll(tmpd)
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 跳过空行与 # 注释；支持 "export " 前缀；去除成对引号；不覆盖已存在的环境变量。
func loadDotEnv(fs afero.Fs, path string) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}
