package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG   LogLevel = iota // 调试信息
	INFO                    // 普通信息
	WARNING                 // 警告信息
	ERROR                   // 错误信息
	FATAL                   // 致命错误
)

// slog 没有 FATAL 级别，用 ERROR+4 表示
const levelFatal = slog.LevelError + 4

// Logger 日志记录器，底层使用 slog 文本格式输出
type Logger struct {
	file        *os.File      // 日志文件句柄，输出到标准流时为 nil
	out         io.Writer     // 实际输出目标
	path        string        // 日志文件路径
	maxSize     int64         // 轮转阈值(字节)，0 表示不轮转
	mu          sync.Mutex    // 保护输出目标和订阅者
	subscribers []chan string // 订阅者通道列表
	level       slog.LevelVar
	slog        *slog.Logger
}

// NewLogger 创建新的日志记录器
// filename 为空或为 "-" 时输出到标准错误
func NewLogger(filename string) (*Logger, error) {
	if filename == "" || filename == "-" {
		return NewWriterLogger(os.Stderr), nil
	}

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", filename, err)
	}

	l := newLogger(file)
	l.file = file
	l.path = filename
	return l, nil
}

// NewWriterLogger 创建输出到任意 io.Writer 的日志记录器
func NewWriterLogger(w io.Writer) *Logger {
	return newLogger(w)
}

// Discard 返回丢弃所有输出的日志记录器，供测试和可选依赖使用
func Discard() *Logger {
	return newLogger(io.Discard)
}

func newLogger(w io.Writer) *Logger {
	l := &Logger{out: w}
	l.level.Set(slog.LevelInfo)
	h := slog.NewTextHandler(writerFunc(l.write), &slog.HandlerOptions{
		Level:       &l.level,
		ReplaceAttr: replaceLevel,
	})
	l.slog = slog.New(h)
	return l
}

// replaceLevel 把 slog 的级别名称换成本包的级别名称
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case level >= levelFatal:
		a.Value = slog.StringValue(FATAL.String())
	case level >= slog.LevelError:
		a.Value = slog.StringValue(ERROR.String())
	case level >= slog.LevelWarn:
		a.Value = slog.StringValue(WARNING.String())
	case level >= slog.LevelInfo:
		a.Value = slog.StringValue(INFO.String())
	default:
		a.Value = slog.StringValue(DEBUG.String())
	}
	return a
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// write 写入日志并通知订阅者
func (l *Logger) write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.out.Write(p)

	entry := string(p)
	for _, ch := range l.subscribers {
		select {
		case ch <- entry: // 尝试发送日志条目
		default: // 通道已满则跳过
		}
	}
	return n, err
}

// SetLevel 按名称设置日志级别: debug, info, warn/warning, error
func (l *Logger) SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.level.Set(slog.LevelDebug)
	case "", "info":
		l.level.Set(slog.LevelInfo)
	case "warn", "warning":
		l.level.Set(slog.LevelWarn)
	case "error":
		l.level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// SetMaxSize 设置轮转阈值，格式同 ParseSize
func (l *Logger) SetMaxSize(expr string) error {
	size, err := ParseSize(expr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.maxSize = size
	l.mu.Unlock()
	return nil
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.out = io.Discard
		return err
	}
	return nil
}

// Reopen 重新打开日志文件，用于外部轮转(SIGHUP)
// filename 为空或为 "-" 时重新打开当前路径，输出到标准流时什么也不做
func (l *Logger) Reopen(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if filename == "" || filename == "-" {
		filename = l.path
	}
	if filename == "" {
		return nil
	}

	// 关闭旧文件
	if l.file != nil {
		_ = l.file.Close()
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.file = nil
		l.out = io.Discard
		return fmt.Errorf("reopen log file %s: %w", filename, err)
	}
	l.file = file
	l.out = file
	l.path = filename
	return nil
}

// CheckRotate 日志文件超过阈值时进行轮转
// 返回是否发生了轮转
func (l *Logger) CheckRotate() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.maxSize <= 0 {
		return false, nil
	}

	info, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() <= l.maxSize {
		return false, nil
	}
	return true, l.rotateLocked()
}

func (l *Logger) rotateLocked() error {
	_ = l.file.Close()

	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405"), ext)
	if err := os.Rename(l.path, rotated); err != nil {
		// 改名失败时继续写原文件
		if file, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); openErr == nil {
			l.file = file
			l.out = file
		} else {
			l.file = nil
			l.out = io.Discard
		}
		return fmt.Errorf("rotate log file: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.file = nil
		l.out = io.Discard
		return fmt.Errorf("reopen rotated log file: %w", err)
	}
	l.file = file
	l.out = file
	return nil
}

// Subscribe 订阅日志消息
// 返回带缓冲(容量100)的只读通道，Close 时关闭
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan string, 100)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅
func (l *Logger) Unsubscribe(sub <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ch := range l.subscribers {
		if ch == sub {
			close(ch)
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			return
		}
	}
}

// Log 记录日志
// args 为 slog 风格的键值对或 slog.Attr
func (l *Logger) Log(level LogLevel, message string, args ...any) {
	l.slog.Log(context.Background(), level.slogLevel(), message, args...)
}

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	case FATAL:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// ParseSize 解析 "10 * 1024 * 1024" 形式的大小表达式
func ParseSize(expr string) (int64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, nil
	}
	var result int64 = 1
	for _, part := range strings.Split(expr, "*") {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size expression %q: %w", expr, err)
		}
		result *= num
	}
	return result, nil
}

// 以下是快捷日志方法
func (l *Logger) Debug(msg string, args ...any)   { l.Log(DEBUG, msg, args...) }   // 记录调试信息
func (l *Logger) Info(msg string, args ...any)    { l.Log(INFO, msg, args...) }    // 记录普通信息
func (l *Logger) Warning(msg string, args ...any) { l.Log(WARNING, msg, args...) } // 记录警告信息
func (l *Logger) Error(msg string, args ...any)   { l.Log(ERROR, msg, args...) }   // 记录错误信息
func (l *Logger) Fatal(msg string, args ...any)   { l.Log(FATAL, msg, args...) }   // 记录致命错误
