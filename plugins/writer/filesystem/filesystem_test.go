package filesystem

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rlhfloop/pkg/contract"
)

func newMem(t *testing.T, opts *Options) (*FS, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	w, err := NewWithFs(fs, opts)
	require.NoError(t, err)
	return w, fs
}

func noTmp(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "tmp file not cleaned: %s", e.Name())
	}
}

func TestWriteAtomicNested(t *testing.T) {
	w, fs := newMem(t, &Options{OutputDir: "/out"})
	require.NoError(t, w.Write(context.Background(), "models/model.json", bytes.NewBufferString("data")))
	b, err := afero.ReadFile(fs, "/out/models/model.json")
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	noTmp(t, fs, "/out/models")
}

func TestWriteAtomicReplaceExisting(t *testing.T) {
	w, fs := newMem(t, &Options{OutputDir: "/out"})
	require.NoError(t, w.Write(context.Background(), "model.json", bytes.NewBufferString("v1")))
	require.NoError(t, w.Write(context.Background(), "model.json", bytes.NewBufferString("v2")))
	b, err := afero.ReadFile(fs, "/out/model.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
}

func TestWriteFlat(t *testing.T) {
	flat := true
	w, fs := newMem(t, &Options{OutputDir: "/out", Flat: &flat})
	require.NoError(t, w.Write(context.Background(), "a/b/report.json", bytes.NewBufferString("x")))
	ok, err := afero.Exists(fs, "/out/report.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWritePathInvalid(t *testing.T) {
	w, _ := newMem(t, &Options{OutputDir: "/out"})
	for _, id := range []contract.ArtifactID{"", ".", "..", "../x.json", "/abs/x.json"} {
		err := w.Write(context.Background(), id, bytes.NewBufferString("x"))
		assert.True(t, errors.Is(err, contract.ErrPathInvalid), "id=%q", id)
	}
	flat := true
	wf, _ := newMem(t, &Options{OutputDir: "/out", Flat: &flat})
	assert.True(t, errors.Is(wf.Write(context.Background(), "..", bytes.NewBufferString("x")), contract.ErrPathInvalid))
}

func TestWriteNonAtomic(t *testing.T) {
	a := false
	w, fs := newMem(t, &Options{OutputDir: "/out", Atomic: &a})
	require.NoError(t, w.Write(context.Background(), "n.json", bytes.NewBufferString("longer content")))
	require.NoError(t, w.Write(context.Background(), "n.json", bytes.NewBufferString("short")))
	b, err := afero.ReadFile(fs, "/out/n.json")
	require.NoError(t, err)
	assert.Equal(t, "short", string(b))
}

func TestWriteCtxCancel(t *testing.T) {
	w, _ := newMem(t, &Options{OutputDir: "/out"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(w.Write(ctx, "x.json", bytes.NewBufferString("x")), context.Canceled))
}

func TestNewDefaults(t *testing.T) {
	w, err := NewWithFs(afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	assert.Equal(t, ".", w.root)
	assert.True(t, w.atomic)
	assert.False(t, w.flat)
	_, err = NewWithFs(nil, nil)
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

func TestWriteAtomicCopyErrorCleansTmp(t *testing.T) {
	w, fs := newMem(t, &Options{OutputDir: "/out"})
	err := w.Write(context.Background(), "bad.json", errReader{})
	require.Error(t, err)
	ok, _ := afero.Exists(fs, "/out/bad.json")
	assert.False(t, ok)
	noTmp(t, fs, "/out")
}

func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readerWithCtx(ctx, strings.NewReader("x")).Read(make([]byte, 1))
	assert.True(t, errors.Is(err, context.Canceled))
}
