package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/download"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/extract"
	"github.com/admi-n/poc-excavator/src/internal/metrics"
	"github.com/admi-n/poc-excavator/src/internal/progress"
	"github.com/admi-n/poc-excavator/src/internal/report"
	"github.com/admi-n/poc-excavator/src/internal/store"
	"github.com/admi-n/poc-excavator/src/internal/trace"
	"github.com/admi-n/poc-excavator/src/strategy/prompts"
)

// Extractor 批量提取
type Extractor interface {
	Run(ctx context.Context, paths []string) *extract.BatchResult
}

// Analyzer AI 根因分析
type Analyzer interface {
	AnalyzeRootCause(ctx context.Context, subject, prompt string) (string, error)
	GetClientInfo() string
}

// SourceFetcher 本地没有合约源码时的远程来源
type SourceFetcher interface {
	FetchSources(ctx context.Context, network internal.Network, addresses []string) []*download.ContractSource
}

// ProgressStore 断点续跑状态
type ProgressStore interface {
	IsDone(sourcePath string) (bool, error)
	MarkDone(sourcePath, runID, reportPath string) error
	SaveRun(info progress.RunInfo) error
}

// Options 流程参数
type Options struct {
	RunID            string
	MaxTraceAttempts int           // 每个项目最多尝试的交易哈希数
	TraceDelay       time.Duration // 两次追踪请求之间的间隔
	ProjectDelay     time.Duration // 两个项目之间的间隔
	RequireTrace     bool          // 没有追踪数据时不做分析
	Resume           bool          // 跳过进度库中已完成的项目
	PromptTemplate   string        // 空表示内置模板
	SummaryDir       string        // 空表示不写运行汇总
}

// Deps 流程依赖，Sources/Sink/Progress/Metrics 可以为空
type Deps struct {
	Extractor  Extractor
	Tracer     trace.Provider
	Analyzer   Analyzer
	Reporter   *report.Reporter
	Normalizer *trace.Normalizer
	Sources    SourceFetcher
	Sink       store.Sink
	Progress   ProgressStore
	Metrics    *metrics.Recorder
	Logger     logrus.FieldLogger
}

// Pipeline 提取 → 追踪 → 分析 → 报告
type Pipeline struct {
	deps  Deps
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline 创建分析流程
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Extractor == nil || deps.Tracer == nil || deps.Analyzer == nil || deps.Reporter == nil {
		return nil, fmt.Errorf("extractor, tracer, analyzer and reporter are required")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = trace.NewNormalizer(trace.DefaultNormalizerConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRecorder()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if opts.MaxTraceAttempts <= 0 {
		opts.MaxTraceAttempts = 3
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Pipeline{deps: deps, opts: opts, sleep: sleepCtx}, nil
}

// RunID 本次运行的 ID
func (p *Pipeline) RunID() string {
	return p.opts.RunID
}

// Run 批量分析
//
// 单个项目失败只记入汇总。ctx 取消时返回已完成部分的汇总和 ctx 的错误。
func (p *Pipeline) Run(ctx context.Context, paths []string) (*report.RunSummary, error) {
	log := p.deps.Logger.WithField("run_id", p.opts.RunID)
	summary := report.NewRunSummary(p.opts.RunID, p.deps.Analyzer.GetClientInfo())
	log.Infof("🚀 开始分析 %d 个 PoC (AI: %s, 追踪: %s)", len(paths), summary.Provider, p.deps.Tracer.Name())

	start := time.Now()
	batch := p.deps.Extractor.Run(ctx, paths)
	p.deps.Metrics.ObserveStage(string(pipeerr.StageRead), time.Since(start))
	p.deps.Metrics.FilesScanned(len(batch.Records) + len(batch.Failures))
	p.deps.Metrics.ExtractFailures(len(batch.Failures))

	for _, f := range batch.Failures {
		p.finish(ctx, summary, nil, report.ProjectOutcome{
			Project:    projectName(f.Path),
			SourcePath: f.Path,
			Status:     report.StatusFailed,
			Stage:      pipeerr.StageRead,
			Detail:     f.Err.Error(),
		})
	}

	records := orderByPaths(batch.Records, paths)
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		rec := &records[i]
		log.Infof("🔍 [%d/%d] %s", i+1, len(records), rec.ProjectName)

		outcome, external := p.process(ctx, rec, true)
		p.finish(ctx, summary, rec, outcome)

		if external && i < len(records)-1 && p.opts.ProjectDelay > 0 {
			if err := p.sleep(ctx, p.opts.ProjectDelay); err != nil {
				break
			}
		}
	}

	p.complete(summary)
	return summary, ctx.Err()
}

// RunSingle 分析单个 PoC，不检查进度库
func (p *Pipeline) RunSingle(ctx context.Context, path string) (report.ProjectOutcome, error) {
	batch := p.deps.Extractor.Run(ctx, []string{path})
	summary := report.NewRunSummary(p.opts.RunID, p.deps.Analyzer.GetClientInfo())

	if len(batch.Failures) > 0 {
		err := batch.Failures[0].Err
		outcome := report.ProjectOutcome{
			Project: projectName(path), SourcePath: path,
			Status: report.StatusFailed, Stage: pipeerr.StageRead, Detail: err.Error(),
		}
		p.finish(ctx, summary, nil, outcome)
		return outcome, err
	}
	if len(batch.Records) == 0 {
		return report.ProjectOutcome{}, ctx.Err()
	}

	rec := &batch.Records[0]
	p.deps.Logger.Infof("🔍 深度分析 %s", rec.ProjectName)
	outcome, _ := p.process(ctx, rec, false)
	p.finish(ctx, summary, rec, outcome)
	p.complete(summary)

	if outcome.Status == report.StatusFailed {
		return outcome, fmt.Errorf("%s: %s", outcome.Stage, outcome.Detail)
	}
	return outcome, nil
}

// process 处理单条记录，第二个返回值表示是否调用过外部服务
func (p *Pipeline) process(ctx context.Context, rec *internal.EvidenceRecord, resume bool) (report.ProjectOutcome, bool) {
	log := p.deps.Logger.WithField("project", rec.ProjectName)
	outcome := report.ProjectOutcome{Project: rec.ProjectName, SourcePath: rec.SourcePath}

	if !rec.HasHashes() {
		log.Info("⚠️  未找到交易哈希，跳过")
		return skipped(outcome, pipeerr.StageRead, "no transaction hashes"), false
	}

	if resume && p.opts.Resume && p.deps.Progress != nil {
		done, err := p.deps.Progress.IsDone(rec.SourcePath)
		if err != nil {
			log.WithError(err).Warn("⚠️  读取进度失败")
		} else if done {
			log.Info("⏭️  已分析过，跳过")
			return skipped(outcome, "", "already analyzed"), false
		}
	}

	start := time.Now()
	ev := p.fetchTrace(ctx, rec)
	p.deps.Metrics.ObserveStage(string(pipeerr.StageTrace), time.Since(start))
	outcome.HasTrace = len(ev) > 0
	if !outcome.HasTrace && p.opts.RequireTrace {
		log.Info("⚠️  没有追踪数据，跳过分析")
		return skipped(outcome, pipeerr.StageTrace, "no trace data"), true
	}

	sources := p.loadSources(ctx, rec)
	prompt, err := prompts.BuildAnalysisPrompt(p.opts.PromptTemplate, rec, p.deps.Normalizer.Normalize(ev), sources)
	if err != nil {
		return failed(outcome, pipeerr.StageAnalysis, err), true
	}

	start = time.Now()
	analysis, err := p.deps.Analyzer.AnalyzeRootCause(ctx, rec.ProjectName, prompt)
	p.deps.Metrics.ObserveStage(string(pipeerr.StageAnalysis), time.Since(start))
	if err != nil {
		p.deps.Metrics.Analysis(p.deps.Analyzer.GetClientInfo(), metrics.AnalysisFailed)
		log.WithError(err).Warn("❌ 分析失败")
		return failed(outcome, pipeerr.StageAnalysis, err), true
	}
	p.deps.Metrics.Analysis(p.deps.Analyzer.GetClientInfo(), metrics.AnalysisOK)

	path, err := p.deps.Reporter.GenerateAndSave(rec, ev, analysis)
	if err != nil {
		log.WithError(err).Warn("❌ 保存报告失败")
		return failed(outcome, pipeerr.StageReport, err), true
	}
	p.deps.Metrics.ReportWritten()
	log.Infof("✅ 报告已保存: %s", path)

	outcome.Status = report.StatusWritten
	outcome.ReportPath = path
	return outcome, true
}

// fetchTrace 依次尝试前 MaxTraceAttempts 个交易哈希，第一个有数据的胜出
func (p *Pipeline) fetchTrace(ctx context.Context, rec *internal.EvidenceRecord) trace.Evidence {
	hashes := rec.TxHashes
	if len(hashes) > p.opts.MaxTraceAttempts {
		hashes = hashes[:p.opts.MaxTraceAttempts]
	}
	provider := p.deps.Tracer.Name()

	for i, hash := range hashes {
		if i > 0 && p.opts.TraceDelay > 0 {
			if err := p.sleep(ctx, p.opts.TraceDelay); err != nil {
				return nil
			}
		}
		p.deps.Logger.Debugf("📡 获取交易追踪 %s (%s)", hash, rec.Network)

		ev, err := p.deps.Tracer.FetchTrace(ctx, hash, rec.Network)
		if err != nil {
			p.deps.Metrics.Trace(provider, metrics.TraceError)
			p.deps.Logger.WithError(err).WithField("tx", hash).Warn("⚠️  获取追踪失败")
			continue
		}
		if len(ev) == 0 {
			p.deps.Metrics.Trace(provider, metrics.TraceMissing)
			continue
		}
		p.deps.Metrics.Trace(provider, metrics.TraceFound)
		return ev
	}
	return nil
}

// loadSources 同目录的 .sol 文件，没有时按漏洞合约地址远程获取
func (p *Pipeline) loadSources(ctx context.Context, rec *internal.EvidenceRecord) []prompts.SourceFile {
	log := p.deps.Logger.WithField("project", rec.ProjectName)
	sources, err := prompts.LoadSiblingSources(rec.SourcePath, func(name string, err error) {
		log.WithError(err).Warnf("⚠️  无法读取 %s", name)
	})
	if err != nil {
		log.WithError(err).Warn("⚠️  读取合约源码失败")
	}
	if len(sources) > 0 || p.deps.Sources == nil || len(rec.VulnerableContracts) == 0 {
		return sources
	}

	for _, src := range p.deps.Sources.FetchSources(ctx, rec.Network, rec.VulnerableContracts) {
		sources = append(sources, prompts.NewSourceFile(src.FileName(), src.SourceCode))
	}
	return sources
}

// finish 记录结果：汇总、指标、下游、进度
func (p *Pipeline) finish(ctx context.Context, summary *report.RunSummary, rec *internal.EvidenceRecord, o report.ProjectOutcome) {
	summary.Add(o)
	p.deps.Metrics.Project(o.Status)

	if p.deps.Sink != nil && rec != nil {
		err := p.deps.Sink.Write(ctx, store.Entry{
			RunID:      p.opts.RunID,
			Record:     *rec,
			Status:     o.Status,
			HasTrace:   o.HasTrace,
			ReportPath: o.ReportPath,
		})
		if err != nil {
			p.deps.Logger.WithError(err).Warnf("⚠️  写入证据下游失败: %s", o.Project)
		}
	}

	if o.Status == report.StatusWritten && p.deps.Progress != nil {
		if err := p.deps.Progress.MarkDone(o.SourcePath, p.opts.RunID, o.ReportPath); err != nil {
			p.deps.Logger.WithError(err).Warn("⚠️  保存进度失败")
		}
	}
}

// complete 收尾：写汇总文件和运行记录
func (p *Pipeline) complete(summary *report.RunSummary) {
	summary.FinishedAt = time.Now()
	p.deps.Metrics.RunFinished(summary.FinishedAt)

	if p.deps.Progress != nil {
		err := p.deps.Progress.SaveRun(progress.RunInfo{
			RunID:      summary.RunID,
			Provider:   summary.Provider,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
			Written:    summary.Count(report.StatusWritten),
			Skipped:    summary.Count(report.StatusSkipped),
			Failed:     summary.Count(report.StatusFailed),
		})
		if err != nil {
			p.deps.Logger.WithError(err).Warn("⚠️  保存运行记录失败")
		}
	}

	if p.opts.SummaryDir != "" {
		path, err := report.SaveRunSummary(p.opts.SummaryDir, summary)
		if err != nil {
			p.deps.Logger.WithError(err).Warn("⚠️  保存运行汇总失败")
		} else {
			p.deps.Logger.Infof("📄 运行汇总: %s", path)
		}
	}

	p.deps.Logger.WithFields(logrus.Fields{
		"written": summary.Count(report.StatusWritten),
		"skipped": summary.Count(report.StatusSkipped),
		"failed":  summary.Count(report.StatusFailed),
	}).Info("📊 分析完成")
}

func skipped(o report.ProjectOutcome, stage pipeerr.Stage, detail string) report.ProjectOutcome {
	o.Status = report.StatusSkipped
	o.Stage = stage
	o.Detail = detail
	return o
}

func failed(o report.ProjectOutcome, stage pipeerr.Stage, err error) report.ProjectOutcome {
	o.Status = report.StatusFailed
	o.Stage = stage
	o.Detail = err.Error()
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
