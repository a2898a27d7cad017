package file

import (
	"errors"
	"fmt"
)

// 加载失败的种类，调用方用 errors.Is 判断
var (
	ErrSourceNotFound    = errors.New("source not found")
	ErrMissingCapability = errors.New("missing decoder capability")
	ErrUnreadableFormat  = errors.New("unreadable format")
	ErrEmptySource       = errors.New("empty source")
)

// SourceError 数据源加载错误
type SourceError struct {
	Kind error  // 上面的错误种类之一
	Path string // 调用方给出的路径
	Dir  string // 实际查找的绝对目录
	Err  error  // 底层错误，可能为 nil
}

func (e *SourceError) Error() string {
	switch e.Kind {
	case ErrSourceNotFound:
		return fmt.Sprintf("source %q not found (searched in %s)", e.Path, e.Dir)
	case ErrMissingCapability:
		return fmt.Sprintf("cannot read %q: spreadsheet decoding is disabled", e.Path)
	case ErrUnreadableFormat:
		if e.Err != nil {
			return fmt.Sprintf("cannot read %q as a spreadsheet or delimited text: %v", e.Path, e.Err)
		}
		return fmt.Sprintf("cannot read %q as a spreadsheet or delimited text; check its content and headers", e.Path)
	case ErrEmptySource:
		return fmt.Sprintf("source %q was found but contains no rows", e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("source %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("source %q: %v", e.Path, e.Kind)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
