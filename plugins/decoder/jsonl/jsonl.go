package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"rlhfloop/pkg/contract"
)

// Options 为 JSONL 解码器配置。
type Options struct {
	// MaxLineBytes 单行上限（字节），默认 4MiB。
	MaxLineBytes int `json:"max_line_bytes"`
	// DisallowUnknownFields 为 true 时拒绝 prompt/chosen/rejected 以外的字段。
	DisallowUnknownFields bool `json:"disallow_unknown_fields"`
}

const defaultMaxLine = 4 * 1024 * 1024

// Decoder 逐行解析偏好样本：每行一个对象，必须含字符串字段 prompt/chosen/rejected。
// 空行跳过；任何一行非法即整体失败（ErrMalformedRecord，附带文件与行号）。
type Decoder struct {
	maxLine int
	strict  bool
}

// New 创建解码器；opts 可为 nil。
func New(opts *Options) *Decoder {
	d := &Decoder{maxLine: defaultMaxLine}
	if opts != nil {
		if opts.MaxLineBytes > 0 {
			d.maxLine = opts.MaxLineBytes
		}
		d.strict = opts.DisallowUnknownFields
	}
	return d
}

// record 使用指针区分“缺失”与“空字符串”。
type record struct {
	Prompt   *string `json:"prompt"`
	Chosen   *string `json:"chosen"`
	Rejected *string `json:"rejected"`
}

// Decode 读取 r 直至 EOF，按行序返回样本。
func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.PreferenceExample, error) {
	sc := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > d.maxLine {
		initial = d.maxLine
	}
	sc.Buffer(make([]byte, 0, initial), d.maxLine)

	var out []contract.PreferenceExample
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ex, err := d.decodeLine(b)
		if err != nil {
			return nil, errors.Wrapf(contract.ErrMalformedRecord, "%s:%d: %v", fileID, line, err)
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.Wrapf(contract.ErrMalformedRecord, "%s:%d: line exceeds %d bytes", fileID, line+1, d.maxLine)
		}
		return nil, errors.Wrapf(err, "read %s", fileID)
	}
	return out, nil
}

func (d *Decoder) decodeLine(b []byte) (contract.PreferenceExample, error) {
	var rec record
	dec := json.NewDecoder(bytes.NewReader(b))
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&rec); err != nil {
		return contract.PreferenceExample{}, err
	}
	if dec.More() {
		return contract.PreferenceExample{}, errors.New("trailing data after object")
	}
	switch {
	case rec.Prompt == nil:
		return contract.PreferenceExample{}, errors.New(`missing field "prompt"`)
	case rec.Chosen == nil:
		return contract.PreferenceExample{}, errors.New(`missing field "chosen"`)
	case rec.Rejected == nil:
		return contract.PreferenceExample{}, errors.New(`missing field "rejected"`)
	}
	return contract.PreferenceExample{
		Prompt:   contract.CleanText(*rec.Prompt),
		Chosen:   contract.CleanText(*rec.Chosen),
		Rejected: contract.CleanText(*rec.Rejected),
	}, nil
}
