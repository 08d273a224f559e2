package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/admi-n/poc-excavator/src/internal/ai"
	"github.com/admi-n/poc-excavator/src/internal/download"
	"github.com/admi-n/poc-excavator/src/internal/handler"
	"github.com/admi-n/poc-excavator/src/internal/metrics"
	"github.com/admi-n/poc-excavator/src/internal/progress"
	"github.com/admi-n/poc-excavator/src/internal/report"
	"github.com/admi-n/poc-excavator/src/internal/store"
	"github.com/admi-n/poc-excavator/src/internal/trace"
	"github.com/admi-n/poc-excavator/src/strategy/prompts"
)

var analyzeFlags struct {
	since        string
	source       string
	workers      int
	requireTrace bool
	resume       bool
	provider     string
	reasoning    bool
	outputDir    string
	template     string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "批量根因分析",
	Long: `对 source 目录下的 PoC 逐个执行 提取 → 追踪 → AI 分析 → 写报告。
单个项目失败不影响其它项目，结束时输出运行汇总。`,
	RunE: runAnalyze,
}

var singleFlags struct {
	provider  string
	reasoning bool
	outputDir string
	template  string
}

var singleCmd = &cobra.Command{
	Use:   "single <file>",
	Short: "单个 PoC 深度分析",
	Long:  "默认使用推理模式，报告文件名为 " + report.EnhancedReportName + "。",
	Args:  cobra.ExactArgs(1),
	RunE:  runSingle,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.since, "since", "", "只处理不早于该日期目录的项目，例如 2024 或 2024-03")
	f.StringVar(&analyzeFlags.source, "source", "", "PoC 根目录")
	f.IntVarP(&analyzeFlags.workers, "workers", "w", 0, "提取并发数")
	f.BoolVar(&analyzeFlags.requireTrace, "require-trace", false, "没有追踪数据时跳过分析")
	f.BoolVar(&analyzeFlags.resume, "resume", false, "跳过进度库中已完成的项目")
	f.StringVar(&analyzeFlags.provider, "provider", "", "AI 服务: deepseek, openai, gemini, local-llm")
	f.BoolVar(&analyzeFlags.reasoning, "reasoning", false, "使用推理模型")
	f.StringVar(&analyzeFlags.outputDir, "output-dir", "", "报告输出目录 (默认写在 PoC 目录)")
	f.StringVar(&analyzeFlags.template, "template", "", "自定义 prompt 模板")

	f = singleCmd.Flags()
	f.StringVar(&singleFlags.provider, "provider", "", "AI 服务: deepseek, openai, gemini, local-llm")
	f.BoolVar(&singleFlags.reasoning, "reasoning", true, "使用推理模型")
	f.StringVar(&singleFlags.outputDir, "output-dir", "", "报告输出目录 (默认写在 PoC 目录)")
	f.StringVar(&singleFlags.template, "template", "", "自定义 prompt 模板")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyDirFlags(analyzeFlags.source, analyzeFlags.since)

	p := &settings.Pipeline
	if analyzeFlags.workers > 0 {
		p.Workers = analyzeFlags.workers
	}
	if cmd.Flags().Changed("require-trace") {
		p.RequireTrace = analyzeFlags.requireTrace
	}
	if cmd.Flags().Changed("resume") {
		p.Resume = analyzeFlags.resume
	}
	if analyzeFlags.outputDir != "" {
		p.OutputDir = analyzeFlags.outputDir
	}
	if analyzeFlags.template != "" {
		p.PromptTemplate = analyzeFlags.template
	}
	if analyzeFlags.provider != "" {
		settings.AI.Provider = analyzeFlags.provider
	}
	if cmd.Flags().Changed("reasoning") {
		settings.AI.Reasoning = analyzeFlags.reasoning
	}

	paths, err := resolvePaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		logger.Warn("⚠️  没有找到 PoC 文件")
		return nil
	}

	rt, err := newSession(ctx, report.DefaultReportName)
	if err != nil {
		return err
	}
	defer rt.close()

	summary, err := rt.pipeline.Run(ctx, paths)
	if summary != nil {
		logger.Infof("📊 写入 %d, 跳过 %d, 失败 %d",
			summary.Count(report.StatusWritten), summary.Count(report.StatusSkipped), summary.Count(report.StatusFailed))
	}
	return err
}

func runSingle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if singleFlags.provider != "" {
		settings.AI.Provider = singleFlags.provider
	}
	settings.AI.Reasoning = singleFlags.reasoning
	if singleFlags.outputDir != "" {
		settings.Pipeline.OutputDir = singleFlags.outputDir
	}
	if singleFlags.template != "" {
		settings.Pipeline.PromptTemplate = singleFlags.template
	}
	settings.Pipeline.Resume = false
	settings.Pipeline.SummaryDir = ""

	rt, err := newSession(ctx, report.EnhancedReportName)
	if err != nil {
		return err
	}
	defer rt.close()

	outcome, err := rt.pipeline.RunSingle(ctx, args[0])
	if err != nil {
		return err
	}
	if outcome.Status == report.StatusSkipped {
		logger.Warnf("⚠️  未生成报告: %s", outcome.Detail)
		return nil
	}
	logger.Infof("✅ 深度分析报告: %s", outcome.ReportPath)
	return nil
}

// session 一次运行创建的所有外部资源
type session struct {
	pipeline *handler.Pipeline
	closers  []func() error
}

func (r *session) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.WithError(err).Warn("⚠️  关闭资源失败")
		}
	}
}

// newSession 按配置组装流程
func newSession(ctx context.Context, reportName string) (_ *session, err error) {
	s := settings
	rt := &session{}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	tmpl, err := prompts.LoadTemplate(s.Pipeline.PromptTemplate)
	if err != nil {
		return nil, err
	}

	coord, err := newCoordinator(s)
	if err != nil {
		return nil, err
	}

	// 追踪: Tenderly 优先，RPC 收据兜底
	var providers []trace.Provider
	if s.Tenderly.Enabled {
		access, bearer, keyErr := s.GetTenderlyKey()
		if keyErr != nil {
			logger.WithError(keyErr).Warn("⚠️  Tenderly 未配置凭证，跳过")
		} else {
			tc, err := trace.NewTenderlyClient(trace.TenderlyConfig{
				BaseURL:     s.Tenderly.BaseURL,
				AccessKey:   access,
				BearerToken: bearer,
				Timeout:     s.Tenderly.Timeout,
				Proxy:       s.Pipeline.Proxy,
			}, logger)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, tc.Close)
			providers = append(providers, tc)
		}
	}
	if endpoints := s.RPCEndpoints(); len(endpoints) > 0 {
		rp := trace.NewRPCProvider(endpoints, logger)
		rt.closers = append(rt.closers, rp.Close)
		providers = append(providers, rp)
	}
	if len(providers) == 0 {
		logger.Warn("⚠️  没有可用的追踪来源，分析将不包含追踪数据")
	}

	provider, err := ai.NormalizeProvider(s.AI.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.AI.APIKey(provider)
	if err != nil {
		return nil, err
	}
	ps := s.AI.ProviderSettings(provider)
	manager, err := ai.NewManager(ctx, ai.ManagerConfig{
		Provider:       provider,
		APIKey:         apiKey,
		BaseURL:        ps.BaseURL,
		Model:          ps.Model,
		Reasoning:      s.AI.Reasoning,
		Timeout:        s.AI.Timeout,
		Proxy:          s.Pipeline.Proxy,
		RequestsPerMin: s.AI.RequestsPerMin,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, manager.Close)
	logger.Infof("🤖 AI: %s", manager.GetClientInfo())

	normalizer := trace.NewNormalizer(s.Trace)
	deps := handler.Deps{
		Extractor:  coord,
		Tracer:     trace.NewChainProvider(logger, providers...),
		Analyzer:   manager,
		Reporter:   report.NewReporter(report.NewMarkdownGenerator(normalizer, s.Report.Explorers), report.NewFileStorage(s.Pipeline.OutputDir, reportName)),
		Normalizer: normalizer,
		Metrics:    metrics.NewRecorder(),
		Logger:     logger,
	}

	if s.Etherscan.Enabled {
		key, keyErr := s.GetEtherscanKey()
		if keyErr != nil {
			logger.WithError(keyErr).Warn("⚠️  Etherscan 未配置 key，跳过源码获取")
		} else {
			ec, err := download.NewEtherscanClient(download.EtherscanConfig{
				APIKey:            key,
				BaseURL:           s.Etherscan.BaseURL,
				Proxy:             s.Pipeline.Proxy,
				RequestsPerSecond: s.Etherscan.RequestsPerSecond,
			}, logger)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, ec.Close)
			deps.Sources = ec
		}
	}

	sink, err := store.Open(ctx, s.StoreConfig(), logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, sink.Close)
	if sink.Len() > 0 {
		deps.Sink = sink
	}

	if s.Progress.Enabled {
		tracker, err := progress.NewTracker(s.Progress.Path, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, tracker.Close)
		deps.Progress = tracker
	}

	if s.Metrics.Enabled {
		srv := metrics.NewServer(s.Metrics.Addr, deps.Metrics)
		go func() {
			if err := srv.Serve(); err != nil {
				logger.WithError(err).Warn("⚠️  指标服务退出")
			}
		}()
		rt.closers = append(rt.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Infof("📈 指标服务: %s/metrics", s.Metrics.Addr)
	}

	rt.pipeline, err = handler.NewPipeline(deps, handler.Options{
		MaxTraceAttempts: s.Pipeline.MaxTraceAttempts,
		TraceDelay:       s.Pipeline.TraceDelay,
		ProjectDelay:     s.Pipeline.ProjectDelay,
		RequireTrace:     s.Pipeline.RequireTrace,
		Resume:           s.Pipeline.Resume,
		PromptTemplate:   tmpl,
		SummaryDir:       s.Pipeline.SummaryDir,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}
