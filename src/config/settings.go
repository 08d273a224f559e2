package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/extract"
	"github.com/admi-n/poc-excavator/src/internal/logging"
	"github.com/admi-n/poc-excavator/src/internal/report"
	"github.com/admi-n/poc-excavator/src/internal/store"
	"github.com/admi-n/poc-excavator/src/internal/trace"
)

// DefaultConfigPath 默认配置文件
const DefaultConfigPath = "configs/settings.yaml"

// EnvPrefix 环境变量前缀，例如 EXCAVATOR_PIPELINE_WORKERS
const EnvPrefix = "EXCAVATOR"

// ProviderConfig 单个 AI 服务的连接信息
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// AIConfig AI 相关配置
type AIConfig struct {
	Provider       string         `mapstructure:"provider" yaml:"provider"`
	Reasoning      bool           `mapstructure:"reasoning" yaml:"reasoning"`
	Timeout        time.Duration  `mapstructure:"timeout" yaml:"timeout"` // 0 表示按 provider 默认值
	RequestsPerMin int            `mapstructure:"requests_per_min" yaml:"requests_per_min"`
	DeepSeek       ProviderConfig `mapstructure:"deepseek" yaml:"deepseek"`
	OpenAI         ProviderConfig `mapstructure:"openai" yaml:"openai"`
	Gemini         ProviderConfig `mapstructure:"gemini" yaml:"gemini"`
	LocalLLM       ProviderConfig `mapstructure:"local_llm" yaml:"local_llm"`
}

// TenderlyConfig 交易追踪服务
type TenderlyConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	AccessKey   string        `mapstructure:"access_key" yaml:"access_key"`
	BearerToken string        `mapstructure:"bearer_token" yaml:"bearer_token"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EtherscanConfig 已验证源码查询
type EtherscanConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerSecond int    `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// PipelineConfig 批量分析流程
type PipelineConfig struct {
	SourceDir        string        `mapstructure:"source_dir" yaml:"source_dir"`
	Since            string        `mapstructure:"since" yaml:"since"` // 日期目录下限，例如 2024 或 2024-03
	Workers          int           `mapstructure:"workers" yaml:"workers"`
	MaxTraceAttempts int           `mapstructure:"max_trace_attempts" yaml:"max_trace_attempts"`
	TraceDelay       time.Duration `mapstructure:"trace_delay" yaml:"trace_delay"`
	ProjectDelay     time.Duration `mapstructure:"project_delay" yaml:"project_delay"`
	RequireTrace     bool          `mapstructure:"require_trace" yaml:"require_trace"`
	Resume           bool          `mapstructure:"resume" yaml:"resume"`
	OutputDir        string        `mapstructure:"output_dir" yaml:"output_dir"` // 空表示写在 PoC 目录
	SummaryDir       string        `mapstructure:"summary_dir" yaml:"summary_dir"`
	PromptTemplate   string        `mapstructure:"prompt_template" yaml:"prompt_template"`
	Proxy            string        `mapstructure:"proxy" yaml:"proxy"`
}

// AddressPatternConfig 额外的地址规则
type AddressPatternConfig struct {
	Category string `mapstructure:"category" yaml:"category"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
}

// ExtractConfig 提取规则
//
// HashPatterns/AddressPatterns 追加在默认规则之后；Networks 整表替换默认链识别表；
// LossPatterns 非空时替换默认损失规则，每条需要 (数额)(单位) 两个捕获组。
type ExtractConfig struct {
	HashPatterns    []string               `mapstructure:"hash_patterns" yaml:"hash_patterns"`
	AddressPatterns []AddressPatternConfig `mapstructure:"address_patterns" yaml:"address_patterns"`
	Networks        extract.NetworkTable   `mapstructure:"networks" yaml:"networks"`
	LossPatterns    []string               `mapstructure:"loss_patterns" yaml:"loss_patterns"`
}

// ReportConfig 报告生成
type ReportConfig struct {
	Explorers report.ExplorerTable `mapstructure:"explorers" yaml:"explorers"` // 整表替换默认浏览器表
}

// ProgressConfig 断点续跑状态
type ProgressConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// DatabaseConfig 关系库下游
type DatabaseConfig struct {
	MySQL    store.MySQLConfig    `mapstructure:"mysql" yaml:"mysql"`
	Postgres store.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// Settings 全局配置结构
type Settings struct {
	AI        AIConfig               `mapstructure:"ai" yaml:"ai"`
	Tenderly  TenderlyConfig         `mapstructure:"tenderly" yaml:"tenderly"`
	RPC       map[string]string      `mapstructure:"rpc" yaml:"rpc"` // 链名 -> RPC URL
	Etherscan EtherscanConfig        `mapstructure:"etherscan" yaml:"etherscan"`
	Pipeline  PipelineConfig         `mapstructure:"pipeline" yaml:"pipeline"`
	Extract   ExtractConfig          `mapstructure:"extract" yaml:"extract"`
	Report    ReportConfig           `mapstructure:"report" yaml:"report"`
	Trace     trace.NormalizerConfig `mapstructure:"trace" yaml:"trace"` // trace 摘要各分区上限
	Database  DatabaseConfig         `mapstructure:"database" yaml:"database"`
	Kafka     store.KafkaConfig      `mapstructure:"kafka" yaml:"kafka"`
	Progress  ProgressConfig         `mapstructure:"progress" yaml:"progress"`
	Metrics   MetricsConfig          `mapstructure:"metrics" yaml:"metrics"`
	Logging   logging.LogConfig      `mapstructure:"logging" yaml:"logging"`
}

// GetDefaultSettings 获取默认配置
func GetDefaultSettings() *Settings {
	return &Settings{
		AI: AIConfig{
			Provider:       "deepseek",
			RequestsPerMin: 20,
			DeepSeek:       ProviderConfig{BaseURL: "https://api.deepseek.com/v1"},
			OpenAI:         ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4-turbo"},
			Gemini:         ProviderConfig{Model: "gemini-2.5-pro"},
			LocalLLM:       ProviderConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
		},
		Tenderly: TenderlyConfig{
			Enabled: true,
			BaseURL: "https://api.tenderly.co/api/v1/public-contract",
			Timeout: 30 * time.Second,
		},
		RPC: map[string]string{},
		Etherscan: EtherscanConfig{
			BaseURL:           "https://api.etherscan.io/v2",
			RequestsPerSecond: 5,
		},
		Pipeline: PipelineConfig{
			SourceDir:        "source",
			Workers:          10,
			MaxTraceAttempts: 3,
			TraceDelay:       time.Second,
			ProjectDelay:     2 * time.Second,
			SummaryDir:       "reports",
		},
		Extract: ExtractConfig{
			Networks: extract.DefaultNetworkTable(),
		},
		Report: ReportConfig{Explorers: report.DefaultExplorers()},
		Trace:  trace.DefaultNormalizerConfig(),
		Database: DatabaseConfig{
			MySQL: store.MySQLConfig{Host: "localhost", Port: "3306", User: "root", Database: "poc_excavator"},
		},
		Kafka: store.KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "exploit-evidence",
			ClientID: "poc-excavator",
		},
		Progress: ProgressConfig{Enabled: true, Path: "./data/progress.db"},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Logging:  logging.DefaultLogConfig,
	}
}

// LoadSettings 加载配置文件，path 为空且默认文件不存在时只用默认值和环境变量
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, GetDefaultSettings()); err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("配置文件不存在: %s", path)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyEnvKeys(&settings)
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// setDefaults 把默认配置展开成 viper 默认值，环境变量覆盖需要 viper 知道所有 key
func setDefaults(v *viper.Viper, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("序列化默认配置失败: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("解析默认配置失败: %w", err)
	}
	for key, value := range m {
		v.SetDefault(key, value)
	}
	return nil
}

// applyEnvKeys 常用的密钥环境变量优先于配置文件
func applyEnvKeys(s *Settings) {
	for env, dst := range map[string]*string{
		"DEEPSEEK_API_KEY":      &s.AI.DeepSeek.APIKey,
		"OPENAI_API_KEY":        &s.AI.OpenAI.APIKey,
		"GEMINI_API_KEY":        &s.AI.Gemini.APIKey,
		"TENDERLY_ACCESS_KEY":   &s.Tenderly.AccessKey,
		"TENDERLY_BEARER_TOKEN": &s.Tenderly.BearerToken,
		"ETHERSCAN_API_KEY":     &s.Etherscan.APIKey,
	} {
		if key := os.Getenv(env); key != "" {
			*dst = key
		}
	}
}

// Validate 检查取值范围
func (s *Settings) Validate() error {
	if s.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1, got %d", s.Pipeline.Workers)
	}
	if s.Pipeline.MaxTraceAttempts < 1 {
		return fmt.Errorf("pipeline.max_trace_attempts must be >= 1, got %d", s.Pipeline.MaxTraceAttempts)
	}
	if s.Pipeline.TraceDelay < 0 || s.Pipeline.ProjectDelay < 0 {
		return fmt.Errorf("pipeline delays must not be negative")
	}
	if err := internal.ValidateProxyURL(s.Pipeline.Proxy); err != nil {
		return fmt.Errorf("pipeline.proxy: %w", err)
	}
	if _, err := s.BuilderConfig(); err != nil {
		return err
	}
	for i, r := range s.Report.Explorers {
		if internal.ParseNetwork(string(r.Network)) == internal.NetworkUnknown {
			return fmt.Errorf("report.explorers[%d]: unknown network %q", i, r.Network)
		}
		if r.TxURL == "" {
			return fmt.Errorf("report.explorers[%d]: tx_url is required", i)
		}
	}
	return nil
}

// RPCEndpoints 把配置中的链名转换成 Network
func (s *Settings) RPCEndpoints() map[internal.Network]string {
	out := make(map[internal.Network]string, len(s.RPC))
	for name, url := range s.RPC {
		if network := internal.ParseNetwork(name); network != internal.NetworkUnknown && url != "" {
			out[network] = url
		}
	}
	return out
}

// StoreConfig 证据下游配置
func (s *Settings) StoreConfig() store.Config {
	return store.Config{
		MySQL:    s.Database.MySQL,
		Postgres: s.Database.Postgres,
		Kafka:    s.Kafka,
	}
}
