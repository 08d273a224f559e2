package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/admi-n/poc-excavator/src/config"
	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/extract"
	"github.com/admi-n/poc-excavator/src/internal/handler"
	"github.com/admi-n/poc-excavator/src/internal/store"
)

// StatusExtracted 只做了提取时写入下游的状态
const StatusExtracted = "extracted"

var extractFlags struct {
	format string
	output string
	since  string
	source string
	store  bool
}

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "只提取证据记录，不调用外部服务",
	Long: `提取交易哈希、攻击者地址、漏洞合约、攻击合约、链和损失金额。
不传文件时扫描 source 目录。`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.format, "format", "json", "输出格式: json, yaml")
	f.StringVarP(&extractFlags.output, "output", "o", "", "输出文件 (默认 stdout)")
	f.StringVar(&extractFlags.since, "since", "", "只处理不早于该日期目录的项目")
	f.StringVar(&extractFlags.source, "source", "", "PoC 根目录")
	f.BoolVar(&extractFlags.store, "store", false, "同时写入已启用的数据库/Kafka")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyDirFlags(extractFlags.source, extractFlags.since)

	paths, err := resolvePaths(args)
	if err != nil {
		return err
	}

	coord, err := newCoordinator(settings)
	if err != nil {
		return err
	}
	batch := coord.Run(ctx, paths)
	for _, f := range batch.Failures {
		logger.WithError(f.Err).Warnf("⚠️  提取失败: %s", f.Path)
	}
	logger.Infof("✅ 提取完成: %d 条记录, %d 个失败", len(batch.Records), len(batch.Failures))

	if extractFlags.store {
		if err := storeRecords(cmd, batch.Records); err != nil {
			return err
		}
	}

	var out io.Writer = os.Stdout
	if extractFlags.output != "" {
		file, err := os.Create(extractFlags.output)
		if err != nil {
			return fmt.Errorf("创建输出文件失败: %w", err)
		}
		defer file.Close()
		out = file
	}
	return writeRecords(out, extractFlags.format, batch.Records)
}

func writeRecords(w io.Writer, format string, records []internal.EvidenceRecord) error {
	if records == nil {
		records = []internal.EvidenceRecord{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("不支持的输出格式: %s", format)
	}
}

func storeRecords(cmd *cobra.Command, records []internal.EvidenceRecord) error {
	sink, err := store.Open(cmd.Context(), settings.StoreConfig(), logger)
	if err != nil {
		return err
	}
	defer sink.Close()
	if sink.Len() == 0 {
		logger.Warn("⚠️  没有启用任何下游存储")
		return nil
	}

	for _, rec := range records {
		if err := sink.Write(cmd.Context(), store.Entry{Record: rec, Status: StatusExtracted}); err != nil {
			logger.WithError(err).Warnf("⚠️  写入失败: %s", rec.ProjectName)
		}
	}
	return nil
}

// applyDirFlags 命令行参数覆盖配置
func applyDirFlags(source, since string) {
	if source != "" {
		settings.Pipeline.SourceDir = source
	}
	if since != "" {
		settings.Pipeline.Since = since
	}
}

func resolvePaths(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	paths, err := handler.Discover(settings.Pipeline.SourceDir, settings.Pipeline.Since)
	if err != nil {
		return nil, err
	}
	logger.Infof("📂 在 %s 找到 %d 个 PoC", settings.Pipeline.SourceDir, len(paths))
	return paths, nil
}

// newCoordinator 默认规则加上配置里的额外规则、链识别表和损失规则
func newCoordinator(s *config.Settings) (*extract.Coordinator, error) {
	cfg, err := s.BuilderConfig()
	if err != nil {
		return nil, fmt.Errorf("无效的提取配置: %w", err)
	}
	return extract.NewCoordinator(extract.NewBuilder(cfg), s.Pipeline.Workers, logger), nil
}
