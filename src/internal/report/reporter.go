package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/report/renderers"
	"github.com/admi-n/poc-excavator/src/internal/trace"
)

// Reporter 报告器，整合生成器和存储功能
type Reporter struct {
	generator Generator
	storage   Storage
}

// NewReporter 创建报告器
func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// GenerateAndSave 生成并保存报告，没有分析文本时不写文件
func (r *Reporter) GenerateAndSave(rec *internal.EvidenceRecord, ev trace.Evidence, analysis string) (string, error) {
	if analysis == "" {
		return "", pipeerr.New(pipeerr.KindExternalUnavailable, pipeerr.StageAnalysis, rec.ProjectName, "没有分析结果，不生成报告")
	}

	content, err := r.generator.Generate(rec, ev, analysis)
	if err != nil {
		return "", pipeerr.Wrap(err, pipeerr.KindStorage, pipeerr.StageReport, rec.ProjectName, "生成报告失败")
	}

	path, err := r.storage.Save(rec, content)
	if err != nil {
		return "", pipeerr.Wrap(err, pipeerr.KindStorage, pipeerr.StageReport, rec.ProjectName, "保存报告失败")
	}
	return path, nil
}

// 单个项目的处理结果
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ProjectOutcome 单个项目在一次运行中的结果
type ProjectOutcome struct {
	Project    string
	SourcePath string
	Status     string
	Stage      pipeerr.Stage // 未产出结果的阶段
	Detail     string
	ReportPath string
	HasTrace   bool
}

// RunSummary 一次批量运行的汇总
type RunSummary struct {
	RunID      string
	Provider   string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []ProjectOutcome
}

// NewRunSummary 创建新的运行汇总
func NewRunSummary(runID, provider string) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Provider:  provider,
		StartedAt: time.Now(),
		Outcomes:  make([]ProjectOutcome, 0),
	}
}

// Add 添加项目结果
func (s *RunSummary) Add(o ProjectOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Count 指定状态的项目数
func (s *RunSummary) Count(status string) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// StageCounts 各阶段未产出结果的项目数
func (s *RunSummary) StageCounts() map[pipeerr.Stage]int {
	counts := make(map[pipeerr.Stage]int)
	for _, o := range s.Outcomes {
		if o.Status != StatusWritten && o.Stage != "" {
			counts[o.Stage]++
		}
	}
	return counts
}

// Render 渲染 markdown 汇总
func (s *RunSummary) Render() string {
	md := renderers.NewMarkdownRenderer()
	md.Title("poc-excavator Run Summary")
	md.Field("Run ID", s.RunID).
		Field("AI Provider", s.Provider).
		Field("Started", s.StartedAt.Format("2006-01-02 15:04:05")).
		Field("Finished", s.FinishedAt.Format("2006-01-02 15:04:05")).
		Break()

	md.Section("", "Statistics").
		Field("Projects", fmt.Sprint(len(s.Outcomes))).
		Field("Reports Written", fmt.Sprint(s.Count(StatusWritten))).
		Field("Skipped", fmt.Sprint(s.Count(StatusSkipped))).
		Field("Failed", fmt.Sprint(s.Count(StatusFailed))).
		Break()

	if stages := s.StageCounts(); len(stages) > 0 {
		keys := make([]string, 0, len(stages))
		for k := range stages {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		md.Section("", "No Result By Stage")
		for _, k := range keys {
			md.Field(k, fmt.Sprint(stages[pipeerr.Stage(k)]))
		}
		md.Break()
	}

	md.Section("", "Projects").Break()
	md.TableRow("", "Project", "Stage", "Trace", "Detail")
	md.TableRow("---", "---", "---", "---", "---")
	for _, o := range s.Outcomes {
		traced := "no"
		if o.HasTrace {
			traced = "yes"
		}
		detail := o.Detail
		if o.ReportPath != "" {
			detail = o.ReportPath
		}
		md.TableRow(renderers.StatusIcon(o.Status), o.Project, string(o.Stage), traced, detail)
	}
	return md.String()
}

// SaveRunSummary 把汇总写到 dir/run_<id>.md
func SaveRunSummary(dir string, s *RunSummary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now()
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.md", s.RunID))
	if err := os.WriteFile(path, []byte(s.Render()), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return path, nil
}
