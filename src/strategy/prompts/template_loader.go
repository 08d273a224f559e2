package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// MaxSourceChars 单个合约源码文件的最大字符数
const MaxSourceChars = 50000

// SourceTruncatedNote 源码被截断时追加的说明
const SourceTruncatedNote = "\n\n// ... (truncated for analysis) ..."

// SourceFile 附带在 prompt 里的合约源码
type SourceFile struct {
	Name      string
	Content   string
	Truncated bool
}

// LoadTemplate 加载模板文件，path 为空时返回内置模板
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return defaultRootCauseTemplate, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", path, err)
	}
	if _, err := template.New(filepath.Base(path)).Funcs(funcs).Parse(string(content)); err != nil {
		return "", fmt.Errorf("invalid template %s: %w", path, err)
	}
	return string(content), nil
}

// ListTemplates 列出目录下所有 .tmpl 模板名
func ListTemplates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmpl") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".tmpl"))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no templates found in %s", dir)
	}
	return names, nil
}

// LoadSiblingSources 读取 PoC 同目录下的其他 .sol 文件，按文件名排序
//
// 读不了的文件跳过，由 onSkip 回调报告。
func LoadSiblingSources(pocPath string, onSkip func(name string, err error)) ([]SourceFile, error) {
	dir := filepath.Dir(pocPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sol") || name == filepath.Base(pocPath) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make([]SourceFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if onSkip != nil {
				onSkip(name, err)
			}
			continue
		}
		sources = append(sources, NewSourceFile(name, string(data)))
	}
	return sources, nil
}

// NewSourceFile 按 MaxSourceChars 截断源码
func NewSourceFile(name, content string) SourceFile {
	r := []rune(content)
	if len(r) <= MaxSourceChars {
		return SourceFile{Name: name, Content: content}
	}
	return SourceFile{
		Name:      name,
		Content:   string(r[:MaxSourceChars]) + SourceTruncatedNote,
		Truncated: true,
	}
}
