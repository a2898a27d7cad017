package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"RosterDashboard/src/datapush"
	"RosterDashboard/src/datasource/email"
	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/web"
)

const (
	shutdownTimeout = 5 * time.Second
	jobTimeout      = 10 * time.Minute
	rotateSchedule  = "@every 1m"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sirve el tablero por HTTP, con métricas, monitoreo del archivo y publicación programada",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 启动时先加载一次，尽早暴露数据源问题
	if _, err := a.pipeline.Load(a.cfg.DataFile); err != nil {
		a.logger.Warning("initial load failed", "path", a.cfg.DataFile, "error", err)
	}

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.cfg.Watch {
		monitor, err := file.NewMonitor(a.cfg.DataFile, a.logger)
		if err != nil {
			return fmt.Errorf("watch %s: %w", a.cfg.DataFile, err)
		}
		defer monitor.Close()
		go func() {
			if err := monitor.Watch(ctx, a.reload); err != nil {
				a.logger.Error("file monitor stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           web.NewServer(a.pipeline, a.cfg, a.logger, a.metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("dashboard listening", "addr", a.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				// 日志文件可能已被外部轮转移走，出错时只能写到标准错误
				if err := a.logger.Reopen(a.cfg.LogName); err != nil {
					fmt.Fprintln(os.Stderr, err)
				} else {
					a.logger.Info("log file reopened", "path", a.cfg.LogName)
				}
				continue
			}
			a.logger.Info("received signal, shutting down", "signal", sig.String())
			return shutdown(srv)
		case <-ctx.Done():
			return shutdown(srv)
		}
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// reload 数据源变化后清空缓存并重新加载
func (a *app) reload(path string) {
	a.pipeline.Invalidate()
	table, err := a.pipeline.Load(path)
	if err != nil {
		a.logger.Error("reload failed", "path", path, "error", err)
		return
	}
	a.logger.Info("roster reloaded", "rows", table.Len(), "dropped", table.Dropped())
}

// scheduler 注册定时发布、邮件拉取和日志轮转
func (a *app) scheduler() (*datapush.Scheduler, error) {
	sched := datapush.NewScheduler(jobTimeout, a.logger)

	if spec := a.cfg.Publish.Schedule; spec != "" {
		if err := sched.AddPublish(spec, datapush.NewPublisher(a.pipeline, a.cfg, a.logger, a.metrics)); err != nil {
			return nil, err
		}
		a.logger.Info("scheduled publish", "schedule", spec)
	}

	if a.cfg.Email.Server != "" && a.cfg.Email.CheckInterval > 0 {
		spec := "@every " + a.cfg.Email.CheckInterval.String()
		if err := sched.Add("fetch", spec, a.fetchJob()); err != nil {
			return nil, err
		}
		a.logger.Info("mailbox polling enabled", "interval", a.cfg.Email.CheckInterval)
	}

	if a.cfg.LogName != "" && a.cfg.LogName != "-" {
		err := sched.Add("rotate", rotateSchedule, func(context.Context) error {
			rotated, err := a.logger.CheckRotate()
			if rotated {
				a.logger.Info("log file rotated", "path", a.cfg.LogName)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// fetchJob 拉取最新的花名册附件，保存到配置的数据文件时重新加载
func (a *app) fetchJob() datapush.Job {
	client := email.NewClient(a.cfg.Email, a.logger)
	handler := email.NewRosterAttachmentHandler(a.cfg.Email.DataDir, a.logger)
	return func(context.Context) error {
		path, err := email.FetchLatestRoster(client, handler, a.cfg.Email.TargetSubject, a.logger)
		if errors.Is(err, email.ErrNoRosterMail) {
			return nil
		}
		if err != nil {
			return err
		}
		if samePath(path, a.cfg.DataFile) {
			a.reload(path)
		} else {
			a.logger.Warning("fetched roster is not the configured data file", "path", path, "data_file", a.cfg.DataFile)
		}
		return nil
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Genera el informe (xlsx y gráficos) y lo envía según la configuración",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := datapush.NewPublisher(a.pipeline, a.cfg, a.logger, a.metrics).Run(ctx)
			if res != nil {
				writeResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
}

func writeResult(w io.Writer, res *datapush.Result) {
	fmt.Fprintf(w, "run:      %s\n", res.RunID)
	fmt.Fprintf(w, "dir:      %s\n", res.Dir)
	fmt.Fprintf(w, "workbook: %s\n", res.Workbook)
	fmt.Fprintf(w, "charts:   %d\n", len(res.Charts))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "skipped:  %s\n", strings.Join(res.Skipped, ", "))
	}
	fmt.Fprintf(w, "pushed:   %t\n", res.Pushed)
	fmt.Fprintf(w, "mailed:   %t\n", res.Mailed)
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Descarga el último listado adjunto desde el buzón",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Email.Server == "" {
				return errors.New("email.server is not configured")
			}
			client := email.NewClient(a.cfg.Email, a.logger)
			handler := email.NewRosterAttachmentHandler(a.cfg.Email.DataDir, a.logger)
			path, err := email.FetchLatestRoster(client, handler, a.cfg.Email.TargetSubject, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// newReopenCmd 通知正在运行的 serve 进程重新打开日志文件，配合 logrotate 使用
func newReopenCmd() *cobra.Command {
	var pid int
	cmd := &cobra.Command{
		Use:   "reopen",
		Short: "Envía SIGHUP al proceso serve para reabrir el archivo de log",
		Args:  cobra.NoArgs,
		// 不需要加载配置
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid <= 0 {
				return errors.New("--pid is required")
			}
			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("send SIGHUP to %d: %w", pid, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "process id of the running serve command")
	return cmd
}
