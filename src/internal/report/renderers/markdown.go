package renderers

import (
	"fmt"
	"strings"
)

// MarkdownRenderer markdown渲染器
type MarkdownRenderer struct {
	b strings.Builder
}

// NewMarkdownRenderer 创建markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Title 一级标题
func (r *MarkdownRenderer) Title(text string) *MarkdownRenderer {
	fmt.Fprintf(&r.b, "# %s\n\n", text)
	return r
}

// Section 二级标题，icon 可为空
func (r *MarkdownRenderer) Section(icon, title string) *MarkdownRenderer {
	if icon != "" {
		fmt.Fprintf(&r.b, "## %s %s\n", icon, title)
	} else {
		fmt.Fprintf(&r.b, "## %s\n", title)
	}
	return r
}

// Field 粗体标签的列表项
func (r *MarkdownRenderer) Field(label, value string) *MarkdownRenderer {
	fmt.Fprintf(&r.b, "- **%s**: %s\n", label, value)
	return r
}

// List 以逗号连接的列表项，空集合显示 N/A
func (r *MarkdownRenderer) List(label string, values []string) *MarkdownRenderer {
	if len(values) == 0 {
		return r.Field(label, "N/A")
	}
	return r.Field(label, strings.Join(values, ", "))
}

// Link 链接形式的列表项
func (r *MarkdownRenderer) Link(label, text, url string) *MarkdownRenderer {
	return r.Field(label, fmt.Sprintf("[%s](%s)", text, url))
}

// Paragraph 原样输出一段文本，前后各空一行
func (r *MarkdownRenderer) Paragraph(text string) *MarkdownRenderer {
	fmt.Fprintf(&r.b, "\n%s\n", strings.TrimRight(text, "\n"))
	return r
}

// Break 空行
func (r *MarkdownRenderer) Break() *MarkdownRenderer {
	r.b.WriteString("\n")
	return r
}

// Rule 分隔线
func (r *MarkdownRenderer) Rule() *MarkdownRenderer {
	r.b.WriteString("---\n")
	return r
}

// Italic 斜体行
func (r *MarkdownRenderer) Italic(text string) *MarkdownRenderer {
	fmt.Fprintf(&r.b, "*%s*\n", text)
	return r
}

// TableRow 表格行
func (r *MarkdownRenderer) TableRow(cells ...string) *MarkdownRenderer {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	fmt.Fprintf(&r.b, "| %s |\n", strings.Join(escaped, " | "))
	return r
}

// String 返回渲染结果
func (r *MarkdownRenderer) String() string {
	return r.b.String()
}

// StatusIcon 处理结果对应的图标
func StatusIcon(status string) string {
	switch status {
	case "written":
		return "✅"
	case "skipped":
		return "⏭️"
	case "failed":
		return "❌"
	default:
		return "⚪"
	}
}
