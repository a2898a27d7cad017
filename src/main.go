package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"RosterDashboard/src/config"
	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/pipeline"
	"RosterDashboard/src/storage"
)

// app 各子命令共享的运行环境
type app struct {
	cfg      *config.Config
	logger   *storage.Logger
	metrics  *metrics.Manager
	pipeline *pipeline.Pipeline
}

// rootFlags 覆盖配置文件的全局参数
type rootFlags struct {
	configPath string
	dataFile   string
	sheet      string
	logLevel   string
	logName    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "rosterdash",
		Short: "Tablero del grupo a partir del listado de estudiantes",
		Long: `rosterdash lee el listado de estudiantes (xlsx o csv), lo limpia
y calcula indicadores, tablas y gráficos del grupo.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "configuration file (yaml or json), defaults to $"+config.EnvConfigFile)
	pf.StringVarP(&flags.dataFile, "file", "f", "", "roster file, overrides data_file")
	pf.StringVar(&flags.sheet, "sheet", "", "worksheet name, overrides sheet_name")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warning, error")
	pf.StringVar(&flags.logName, "log-file", "", "log file, \"-\" writes to stderr")

	rootCmd.AddCommand(
		newSummaryCmd(a),
		newServeCmd(a),
		newPublishCmd(a),
		newFetchCmd(a),
		newReopenCmd(),
	)
	return rootCmd
}

// setup 加载配置并初始化日志、指标和加载流程
func (a *app) setup(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.dataFile != "" {
		cfg.DataFile = flags.dataFile
	}
	if flags.sheet != "" {
		cfg.SheetName = flags.sheet
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logName != "" {
		cfg.LogName = flags.logName
	}

	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Close()
		return err
	}
	if err := logger.SetMaxSize(cfg.LogMaxSize); err != nil {
		logger.Close()
		return fmt.Errorf("log_max_size: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.NewManager()
	a.pipeline = pipeline.New(pipeline.Options{
		File: file.Options{SheetName: cfg.SheetName, Spreadsheet: cfg.Spreadsheet},
	}, logger, a.metrics)
	logger.Debug("configuration loaded", "command", cmd.Name(), "data_file", cfg.DataFile)
	return nil
}
