package filesystem

import (
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"rlhfloop/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（基名，大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Extensions: 扫描目录时仅接收这些扩展名；默认 [".jsonl"]。
	// 显式给出的单文件 root 不受限制。
	Extensions []string `json:"extensions"`
}

// FileSystem 基于 afero.Fs 与 STDIN 的 Reader。
type FileSystem struct {
	fs         afero.Fs
	stdin      io.Reader
	bufSize    int
	excludeDir map[string]struct{}
	exts       map[string]struct{}
}

// New 创建基于宿主文件系统的 Reader。
func New(opts *Options) *FileSystem {
	return NewWithFs(afero.NewOsFs(), os.Stdin, opts)
}

// NewWithFs 使用指定文件系统与 STDIN 来源。
func NewWithFs(fs afero.Fs, stdin io.Reader, opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ex := make(map[string]struct{})
	exts := map[string]struct{}{".jsonl": {}}
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name != "" {
				ex[strings.ToLower(name)] = struct{}{}
			}
		}
		if len(opts.Extensions) > 0 {
			exts = make(map[string]struct{}, len(opts.Extensions))
			for _, e := range opts.Extensions {
				e = strings.ToLower(strings.TrimSpace(e))
				if e == "" {
					continue
				}
				if !strings.HasPrefix(e, ".") {
					e = "." + e
				}
				exts[e] = struct{}{}
			}
		}
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	return &FileSystem{fs: fs, stdin: stdin, bufSize: b, excludeDir: ex, exts: exts}
}

// Iterate 按 sources 给定顺序遍历；目录内按字典序（先子目录，后文件）。
// sources 为空或仅含 "-" 时读取 STDIN。
func (r *FileSystem) Iterate(ctx context.Context, sources []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(sources) == 0 || (len(sources) == 1 && sources[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(ioutil.NopCloser(r.stdin), r.bufSize))
	}
	if len(sources) > 1 {
		for _, s := range sources {
			if s == "-" {
				return errors.Wrap(contract.ErrInvalidInput, "stdin '-' cannot be mixed with other sources")
			}
		}
	}
	for _, src := range sources {
		if err := r.iterateOne(ctx, src, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, src string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := r.fs.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.walkDir(ctx, src, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(src, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !e.Mode().IsRegular() {
			continue
		}
		if _, ok := r.exts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		if err := r.open(filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) open(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := r.fs.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
