// Package pipeline 带缓存的花名册加载流程: 读取、解码、清洗
package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"

	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/storage"
)

// Options 影响清洗结果的配置
type Options struct {
	File      file.Options
	CacheSize int              // 缓存的表数量，默认 4
	Now       func() time.Time // 时钟，nil 时使用 time.Now
}

// Pipeline 按 (内容指纹, 配置指纹) 缓存清洗后的表
type Pipeline struct {
	opts       Options
	loader     *file.Loader
	normalizer *processor.Normalizer
	memo       *storage.Memo[cacheKey, *processor.Table]
	metrics    *metrics.Manager
	logger     *storage.Logger
}

type cacheKey struct {
	path    string
	content string
	config  string
}

func New(opts Options, logger *storage.Logger, m *metrics.Manager) *Pipeline {
	if logger == nil {
		logger = storage.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4
	}
	return &Pipeline{
		opts:       opts,
		loader:     file.NewLoader(opts.File, logger),
		normalizer: &processor.Normalizer{Now: opts.Now, Logger: logger},
		memo:       storage.NewMemo[cacheKey, *processor.Table](opts.CacheSize),
		metrics:    m,
		logger:     logger,
	}
}

// Fingerprint 内容指纹
func Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ConfigFingerprint 配置指纹，包含当天日期，跨天后年龄会重新计算
func (p *Pipeline) ConfigFingerprint() string {
	return p.opts.File.Fingerprint() + ";day=" + p.opts.Now().Format("2006-01-02")
}

// Load 返回 path 对应的清洗结果，源内容和配置都未变化时直接返回缓存
// 失败不缓存，也不返回部分结果
func (p *Pipeline) Load(path string) (*processor.Table, error) {
	start := time.Now()

	data, err := p.loader.ReadSource(path)
	if err != nil {
		p.finish(path, start, nil, err)
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := cacheKey{path: abs, content: Fingerprint(data), config: p.ConfigFingerprint()}

	table, hit, err := p.memo.Get(key, func() (*processor.Table, error) {
		raw, err := p.loader.Decode(path, data)
		if err != nil {
			return nil, err
		}
		return p.normalizer.Normalize(raw)
	})
	p.metrics.RecordCache(hit)
	if hit {
		p.logger.Debug("roster served from cache", "path", path, "fingerprint", key.content)
		return table, nil
	}
	p.finish(path, start, table, err)
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (p *Pipeline) finish(path string, start time.Time, table *processor.Table, err error) {
	result := Result(err)
	p.metrics.RecordLoad(result, time.Since(start))
	if err != nil {
		p.logger.Error("roster load failed", "path", path, "result", result, "error", err)
		return
	}
	p.metrics.SetRows(table.Len(), table.Dropped())
}

// Invalidate 清空缓存，数据源变化时调用
func (p *Pipeline) Invalidate() {
	p.memo.Invalidate()
	p.logger.Info("roster cache invalidated")
}

// Result 把错误映射为指标标签
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, file.ErrSourceNotFound):
		return "source_not_found"
	case errors.Is(err, file.ErrMissingCapability):
		return "missing_capability"
	case errors.Is(err, file.ErrUnreadableFormat):
		return "unreadable_format"
	case errors.Is(err, file.ErrEmptySource):
		return "empty_source"
	case errors.Is(err, processor.ErrSchema):
		return "schema_error"
	case errors.Is(err, processor.ErrNoUsableRows):
		return "no_usable_rows"
	default:
		return "error"
	}
}
