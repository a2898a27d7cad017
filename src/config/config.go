package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀，嵌套字段用双下划线分隔，例如 ROSTER_PUBLISH__DIR
const EnvPrefix = "ROSTER_"

// EnvConfigFile 指定配置文件路径的环境变量
const EnvConfigFile = "ROSTER_CONFIG"

// Config 应用程序配置
type Config struct {
	DataFile    string `koanf:"data_file" validate:"required"` // 花名册文件
	SheetName   string `koanf:"sheet_name"`                    // 工作表名称，为空时取第一个
	Spreadsheet bool   `koanf:"spreadsheet"`                   // 是否启用电子表格解码
	Watch       bool   `koanf:"watch"`                         // serve 时监控文件变化

	LogName    string `koanf:"log_name"`
	LogLevel   string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	LogMaxSize string `koanf:"log_max_size"` // 例如 "10 * 1024 * 1024"

	Addr      string   `koanf:"addr" validate:"required"`
	GroupInfo string   `koanf:"group_info"`
	Members   []string `koanf:"members"` // 成员下拉框中的姓名
	TopN      int      `koanf:"top_n" validate:"min=1,max=100"`

	Publish   PublishConfig   `koanf:"publish"`
	Email     EmailConfig     `koanf:"email"`
	SendEmail SendEmailConfig `koanf:"send_email"`
}

// PublishConfig 报表发布
type PublishConfig struct {
	Dir           string        `koanf:"dir"`
	Schedule      string        `koanf:"schedule"` // cron 表达式，为空时不定时发布
	WebhookURL    string        `koanf:"webhook_url" validate:"omitempty,url"`
	RetryTimes    int           `koanf:"retry_times" validate:"min=0,max=10"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// EmailConfig 从邮箱拉取花名册附件
type EmailConfig struct {
	Server        string        `koanf:"server"`                                   // IMAP 服务器地址
	Username      string        `koanf:"username" validate:"required_with=Server"` // 邮箱用户名
	Password      string        `koanf:"password"`                                 // 邮箱密码
	TargetSubject string        `koanf:"target_subject"`                           // 需要匹配的邮件主题
	DataDir       string        `koanf:"data_dir"`                                 // 附件保存目录
	CheckInterval time.Duration `koanf:"check_interval"`                           // 检查新邮件的间隔
}

// SendEmailConfig 通过邮件发送报表
type SendEmailConfig struct {
	Server   string   `koanf:"server"` // host:port
	Username string   `koanf:"username" validate:"required_with=Server"`
	Password string   `koanf:"password"`
	To       []string `koanf:"to" validate:"dive,email"`
	Subject  string   `koanf:"subject"`
}

// DefaultMembers 默认的小组成员
var DefaultMembers = []string{
	"Yalen Camilo Aguirre",
	"Ronald Briceño",
	"Samuel Alzate",
	"Maria Camila Rojas",
	"Juan Jose Rivera",
}

// New 返回默认配置
func New() *Config {
	return &Config{
		DataFile:    "estudiantes.xlsx",
		Spreadsheet: true,
		LogName:     "-",
		LogLevel:    "info",
		LogMaxSize:  "10 * 1024 * 1024",
		Addr:        ":8080",
		GroupInfo:   "Grupo 051 (001, 050, 051)",
		Members:     append([]string(nil), DefaultMembers...),
		TopN:        5,
		Publish: PublishConfig{
			Dir:           "reports",
			RetryTimes:    3,
			RetryInterval: 2 * time.Second,
		},
		Email: EmailConfig{
			DataDir:       "data",
			CheckInterval: 5 * time.Minute,
		},
		SendEmail: SendEmailConfig{
			Subject: "Resumen del grupo",
		},
	}
}

// Load 按 默认值 -> 配置文件 -> 环境变量 的顺序叠加配置
// path 为空时读取 ROSTER_CONFIG 指定的文件，两者都为空则跳过文件
// 配置文件用 YAML 解析，JSON 也可以直接使用
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	cfg := New()
	// 列表字段解码时会复用已有切片，先清空再补默认值
	cfg.Members = nil
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Members = splitList(cfg.Members)
	if len(cfg.Members) == 0 {
		cfg.Members = append([]string(nil), DefaultMembers...)
	}
	cfg.SendEmail.To = splitList(cfg.SendEmail.To)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate 校验配置，返回的错误逐条列出不合法的字段
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msg := "invalid configuration:"
	for _, fe := range verrs {
		msg = fmt.Sprintf("%s\n- %s failed on %q", msg, fe.Namespace(), fe.Tag())
	}
	return errors.New(msg)
}

// splitList 环境变量中的列表写成逗号分隔的单个值
func splitList(in []string) []string {
	if len(in) != 1 || !strings.Contains(in[0], ",") {
		return in
	}
	var out []string
	for _, s := range strings.Split(in[0], ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
