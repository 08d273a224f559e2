package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/admi-n/poc-excavator/src/config"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

var (
	configPath string
	logLevel   string

	settings *config.Settings
	logger   *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "excavator",
	Short: "poc-excavator - DeFi 攻击 PoC 根因分析",
	Long: `从 DeFiHackLabs 风格的 PoC 目录中提取交易哈希和地址，
获取交易追踪，交给 AI 做根因分析并把 markdown 报告写回 PoC 目录。

目录结构: <source>/<日期>/<项目>/<项目>_exp.sol`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			s.Logging.Level = logLevel
		}
		l, err := logging.New(s.Logging)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		settings, logger = s, l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认 "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别: debug, info, warn, error")

	rootCmd.AddCommand(extractCmd, analyzeCmd, singleCmd, listCmd, progressCmd)
}

// Run 执行命令行，收到 SIGINT/SIGTERM 时取消正在进行的运行
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// PrintFatal 将错误打印到 stderr 并以非零代码退出。
func PrintFatal(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
