package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"rlhfloop/internal/config"
)

type initArgs struct {
	Dir string `arg:"positional" help:"target directory (default: current directory)"`
}

func (i *initArgs) handle(a *app) int {
	dir := i.Dir
	if dir == "" {
		dir = "."
	}
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		fprintf(a.stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	cfgPath := filepath.Join(dir, "config.json")
	b, err := json.MarshalIndent(config.DefaultTemplateConfig(), "", "  ")
	if err == nil {
		err = writeIfAbsent(a.fs, cfgPath, append(b, '\n'))
	}
	if err != nil {
		fprintf(a.stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	if err := writeIfAbsent(a.fs, filepath.Join(dir, ".env"), []byte(config.DefaultEnvTemplate())); err != nil {
		fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	fprintf(a.stdout, "config: %s\n", cfgPath)
	return exitOK
}

// writeIfAbsent 仅在文件不存在时创建；已存在则静默跳过。
func writeIfAbsent(fs afero.Fs, path string, data []byte) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
