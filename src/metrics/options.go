// Package metrics 花名册服务的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option 管理器配置项
type Option func(*Manager)

// WithNamespace 设置指标命名空间
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem 设置指标子系统
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets 设置耗时直方图的分桶(秒)
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithConstLabels 为所有指标附加固定标签
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.constLabels = labels
		}
	}
}

// WithRegistry 使用指定的注册表，同时用于 /metrics 输出
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
