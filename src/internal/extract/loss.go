package extract

import (
	"regexp"

	"github.com/admi-n/poc-excavator/src/internal"
)

// DefaultLossPatterns 损失金额规则，按顺序尝试，单位区分大小写
func DefaultLossPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`[Tt]otal [Ll]ost.*?[\$:]?\s*([\d,]+(?:\.\d+)?)\s*([A-Z]{3,4}|\$)`),
		regexp.MustCompile(`[Ll]ost.*?[\$:]?\s*([\d,]+(?:\.\d+)?)\s*([A-Z]{3,4}|\$)`),
	}
}

// LossExtractor 从注释中提取声明的损失金额
type LossExtractor struct {
	patterns []*regexp.Regexp
}

func NewLossExtractor(patterns []*regexp.Regexp) *LossExtractor {
	return &LossExtractor{patterns: patterns}
}

// Extract 返回第一条命中规则的 (数额, 单位)，都未命中返回 nil
func (e *LossExtractor) Extract(text string) *internal.LossAmount {
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 3 {
			continue
		}
		return &internal.LossAmount{Amount: m[1], Unit: m[2]}
	}
	return nil
}
