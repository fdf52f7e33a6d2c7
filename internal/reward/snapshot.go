package reward

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"rlhfloop/pkg/contract"
)

// SnapshotVersion 为当前快照格式版本。
const SnapshotVersion = 1

// Snapshot: 模型的可持久化视图；Weights 保持首次出现顺序。
type Snapshot struct {
	Version int                    `json:"version"`
	Weights []contract.TokenWeight `json:"weights"`
}

// Snapshot 导出当前权重。
func (m *Model) Snapshot() Snapshot {
	return Snapshot{Version: SnapshotVersion, Weights: m.Weights()}
}

// Restore 由快照重建模型。重复 token 或未知版本视为无效。
func Restore(s Snapshot) (*Model, error) {
	if s.Version != SnapshotVersion {
		return nil, errors.Wrapf(contract.ErrSnapshotInvalid, "unsupported version %d", s.Version)
	}
	m := New()
	for i, tw := range s.Weights {
		if _, dup := m.weights[tw.Token]; dup {
			return nil, errors.Wrapf(contract.ErrSnapshotInvalid, "duplicate token %q at %d", tw.Token, i)
		}
		m.add(tw.Token, tw.Weight)
	}
	return m, nil
}

// EncodeSnapshot 将模型以缩进 JSON 写出。
func EncodeSnapshot(w io.Writer, m *Model) error {
	b, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// SnapshotReader 返回可直接交给 contract.Writer 的快照字节流。
func SnapshotReader(m *Model) (io.Reader, error) {
	var buf bytes.Buffer
	if err := EncodeSnapshot(&buf, m); err != nil {
		return nil, err
	}
	return &buf, nil
}

// DecodeSnapshot 严格解析快照（拒绝未知字段）并重建模型。
func DecodeSnapshot(r io.Reader) (*Model, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrapf(contract.ErrSnapshotInvalid, "decode: %v", err)
	}
	return Restore(s)
}
