package datapush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RosterDashboard/src/charts"
	"RosterDashboard/src/config"
	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/storage"
)

// TableSource 返回清洗后的花名册，pipeline.Pipeline 实现了它
type TableSource interface {
	Load(path string) (*processor.Table, error)
}

// WorkbookName 每次发布生成的工作簿文件名
const WorkbookName = "resumen.xlsx"

// Result 一次发布的产物
type Result struct {
	RunID    string
	Dir      string
	Workbook string
	Charts   []string // 已生成的图表文件
	Skipped  []string // 数据不足而跳过的图表
	Pushed   bool
	Mailed   bool
}

// Publisher 生成报表文件，并按配置推送和发送邮件
type Publisher struct {
	source   TableSource
	cfg      *config.Config
	renderer charts.Renderer
	pusher   *Pusher
	mailer   *Mailer
	logger   *storage.Logger
	metrics  *metrics.Manager

	Now   func() time.Time
	NewID func() string
}

func NewPublisher(source TableSource, cfg *config.Config, logger *storage.Logger, m *metrics.Manager) *Publisher {
	if logger == nil {
		logger = storage.Discard()
	}
	p := &Publisher{
		source:   source,
		cfg:      cfg,
		renderer: charts.DefaultRenderer(),
		logger:   logger,
		metrics:  m,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
	if cfg.Publish.WebhookURL != "" {
		p.pusher = NewPusher(cfg.Publish.WebhookURL, cfg.Publish.RetryTimes, cfg.Publish.RetryInterval, logger, m)
	}
	if mailer := NewMailer(cfg.SendEmail); mailer.Enabled() {
		p.mailer = mailer
	}
	return p
}

// Run 执行一次发布，推送或邮件失败时仍返回已生成的产物
func (p *Publisher) Run(ctx context.Context) (*Result, error) {
	res, err := p.run(ctx)
	switch {
	case err == nil:
		p.metrics.RecordPublish("ok")
	case res != nil:
		p.metrics.RecordPublish("partial")
	default:
		p.metrics.RecordPublish("error")
	}
	return res, err
}

func (p *Publisher) run(ctx context.Context) (*Result, error) {
	runID := p.NewID()
	now := p.Now()
	logger := p.logger

	table, err := p.source.Load(p.cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	d, err := dashboard.New(table, nil, p.cfg.Members)
	if err != nil {
		return nil, err
	}
	view := d.Base()

	report, err := BuildReport(view, p.cfg.GroupInfo, p.cfg.TopN, runID, now)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	res := &Result{
		RunID: runID,
		Dir:   filepath.Join(p.cfg.Publish.Dir, now.Format("20060102-150405")+"-"+shortID(runID)),
	}
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	images, err := p.renderCharts(ctx, view, res)
	if err != nil {
		return nil, err
	}

	res.Workbook = filepath.Join(res.Dir, WorkbookName)
	if err := WriteWorkbook(res.Workbook, table, report); err != nil {
		return nil, err
	}
	logger.Info("report written", "run", runID, "dir", res.Dir, "charts", len(res.Charts), "skipped", len(res.Skipped))

	var errs []error
	if p.pusher != nil {
		msg := Message{Title: report.Title(), Text: report.Markdown(), Images: images}
		if err := p.pusher.Push(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("push report: %w", err))
		} else {
			res.Pushed = true
		}
	}
	if p.mailer != nil {
		if err := p.mailer.Send(report, res.Workbook); err != nil {
			errs = append(errs, fmt.Errorf("mail report: %w", err))
		} else {
			res.Mailed = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("report delivery failed", "run", runID, "error", err)
		return res, err
	}
	return res, nil
}

// renderCharts 并发渲染所有图表并写入发布目录
func (p *Publisher) renderCharts(ctx context.Context, view *dashboard.View, res *Result) ([]Image, error) {
	var (
		mu     sync.Mutex
		images []Image
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range charts.Names {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			err := p.renderer.Render(name, view, &buf)
			if errors.Is(err, charts.ErrNotEnoughData) {
				p.logger.Warning("chart skipped", "chart", name, "reason", err)
				mu.Lock()
				res.Skipped = append(res.Skipped, name)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("render chart %s: %w", name, err)
			}

			path := filepath.Join(res.Dir, name+".png")
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write chart %s: %w", name, err)
			}
			mu.Lock()
			res.Charts = append(res.Charts, path)
			images = append(images, Image{Name: name + ".png", Data: buf.Bytes()})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(res.Charts)
	sort.Strings(res.Skipped)
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
