// reader.go
package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"RosterDashboard/src/storage"
)

// Candidate 一种候选解码方式，按顺序尝试，第一个成功的生效
type Candidate interface {
	Name() string
	Decode(data []byte) (*RawTable, error)
}

// Options 加载选项，参与缓存键计算
type Options struct {
	SheetName   string // 工作表名称，为空或不存在时取第一个
	Spreadsheet bool   // 是否启用电子表格解码
}

// Fingerprint 返回选项的稳定字符串表示
func (o Options) Fingerprint() string {
	return fmt.Sprintf("sheet=%s;spreadsheet=%t", o.SheetName, o.Spreadsheet)
}

// Loader 数据源加载器
type Loader struct {
	spreadsheets []Candidate
	delimited    []Candidate
	logger       *storage.Logger
}

// NewLoader 按选项创建加载器
// 电子表格候选: excelize 优先，tealeg/xlsx 其次
// 文本候选顺序固定: (;,latin-1) (,,latin-1) (;,utf-8) (,,utf-8)
func NewLoader(opts Options, logger *storage.Logger) *Loader {
	if logger == nil {
		logger = storage.Discard()
	}
	l := &Loader{
		delimited: DelimitedCandidates(),
		logger:    logger,
	}
	if opts.Spreadsheet {
		l.spreadsheets = []Candidate{
			excelizeCandidate{sheet: opts.SheetName},
			xlsxCandidate{sheet: opts.SheetName},
		}
	}
	return l
}

// WithCandidates 替换候选列表，传入 nil 的电子表格列表相当于禁用电子表格解码
func (l *Loader) WithCandidates(spreadsheets, delimited []Candidate) *Loader {
	return &Loader{
		spreadsheets: spreadsheets,
		delimited:    delimited,
		logger:       l.logger,
	}
}

// Load 读取并解码 path 指向的数据源
func (l *Loader) Load(path string) (*RawTable, error) {
	data, err := l.ReadSource(path)
	if err != nil {
		return nil, err
	}
	return l.Decode(path, data)
}

// ReadSource 读取数据源的原始字节
// 路径不存在或是目录时返回 ErrSourceNotFound，并带上实际查找的绝对目录
func (l *Loader) ReadSource(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	dir := filepath.Dir(abs)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceError{Kind: ErrSourceNotFound, Path: path, Dir: dir}
		}
		return nil, &SourceError{Kind: ErrUnreadableFormat, Path: path, Dir: dir, Err: err}
	}
	if info.IsDir() {
		return nil, &SourceError{Kind: ErrSourceNotFound, Path: path, Dir: dir}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceError{Kind: ErrUnreadableFormat, Path: path, Dir: dir, Err: err}
	}
	return data, nil
}

// Decode 依次尝试各候选解码 data
func (l *Loader) Decode(path string, data []byte) (*RawTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &SourceError{Kind: ErrEmptySource, Path: path}
	}
	if len(l.spreadsheets) == 0 {
		return nil, &SourceError{Kind: ErrMissingCapability, Path: path}
	}

	for _, c := range l.spreadsheets {
		t, err := c.Decode(data)
		if err != nil {
			l.logger.Debug("spreadsheet candidate failed", "path", path, "candidate", c.Name(), "error", err)
			continue
		}
		if t.Len() == 0 {
			return nil, &SourceError{Kind: ErrEmptySource, Path: path}
		}
		l.logger.Info("source loaded", "path", path, "format", t.Format, "rows", t.Len(), "columns", len(t.Columns))
		return t, nil
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	headerOnly := false
	var lastErr error
	for _, c := range l.delimited {
		t, err := c.Decode(data)
		if err != nil {
			if errors.Is(err, errHeaderOnly) {
				headerOnly = true
			}
			lastErr = err
			l.logger.Debug("delimited candidate failed", "path", path, "candidate", c.Name(), "error", err)
			continue
		}
		l.logger.Info("source loaded", "path", path, "format", t.Format, "rows", t.Len(), "columns", len(t.Columns))
		return t, nil
	}

	if headerOnly {
		return nil, &SourceError{Kind: ErrEmptySource, Path: path}
	}
	l.logger.Warning("no candidate could decode source", "path", path, "error", lastErr)
	return nil, &SourceError{Kind: ErrUnreadableFormat, Path: path}
}
