// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"RosterDashboard/src/storage"
)

// Monitor 监控单个数据源文件的变化
// 监听的是文件所在目录，编辑器先写临时文件再改名的方式也能被捕获
type Monitor struct {
	path    string
	watcher *fsnotify.Watcher
	lastMod time.Time
	size    int64
	mu      sync.Mutex
	logger  *storage.Logger
}

func NewMonitor(path string, logger *storage.Logger) (*Monitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = storage.Discard()
	}

	return &Monitor{
		path:    abs,
		watcher: watcher,
		size:    -1,
		logger:  logger,
	}, nil
}

// Watch 阻塞直到 ctx 结束或监听出错
// 文件修改时间或大小变化时同步调用 handler
func (m *Monitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			info, err := os.Stat(m.path)
			if err != nil {
				continue
			}
			if m.changed(info) {
				m.logger.Info("source changed", "path", m.path, "op", event.Op.String())
				handler(m.path)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *Monitor) changed(info os.FileInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info.ModTime().Equal(m.lastMod) && info.Size() == m.size {
		return false
	}
	m.lastMod = info.ModTime()
	m.size = info.Size()
	return true
}

// Close 停止监听
func (m *Monitor) Close() error {
	return m.watcher.Close()
}
