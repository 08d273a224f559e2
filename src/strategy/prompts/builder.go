package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/admi-n/poc-excavator/src/internal"
)

// MaxPoCChars prompt 中 PoC 代码的最大字符数
const MaxPoCChars = 6000

//go:embed templates/root_cause.tmpl
var defaultRootCauseTemplate string

// DefaultTemplate 内置的根因分析模板
func DefaultTemplate() string {
	return defaultRootCauseTemplate
}

// AnalysisInput 模板可用的数据
type AnalysisInput struct {
	Record  *internal.EvidenceRecord
	PoC     string
	Sources []SourceFile
	Trace   string
}

var funcs = template.FuncMap{
	"join": func(values []string) string {
		return strings.Join(values, ", ")
	},
}

// BuildPrompt 使用模板和变量构建最终的 prompt
func BuildPrompt(templateContent string, data any) (string, error) {
	tmpl, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(templateContent)
	if err != nil {
		return "", fmt.Errorf("模板解析失败: %w", err)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, data); err != nil {
		return "", fmt.Errorf("模板执行失败: %w", err)
	}
	return result.String(), nil
}

// BuildAnalysisPrompt 构建根因分析 prompt
//
// templateContent 为空时使用内置模板；PoC 文本超过 MaxPoCChars 时截断并以 "..." 结尾。
func BuildAnalysisPrompt(templateContent string, rec *internal.EvidenceRecord, normalizedTrace string, sources []SourceFile) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("evidence record is required")
	}
	if templateContent == "" {
		templateContent = defaultRootCauseTemplate
	}
	return BuildPrompt(templateContent, AnalysisInput{
		Record:  rec,
		PoC:     ClipPoC(rec.RawText),
		Sources: sources,
		Trace:   normalizedTrace,
	})
}

// ClipPoC 截断 PoC 代码
func ClipPoC(code string) string {
	r := []rune(code)
	if len(r) <= MaxPoCChars {
		return code
	}
	return string(r[:MaxPoCChars]) + "..."
}
