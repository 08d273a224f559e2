package config

import (
	"fmt"
	"regexp"

	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/extract"
)

// BuilderConfig 编译提取规则：默认规则加上额外规则、链识别表、损失规则
func (s *Settings) BuilderConfig() (extract.BuilderConfig, error) {
	var extra []extract.Pattern
	for i, expr := range s.Extract.HashPatterns {
		p, err := extract.CompilePattern(extract.KindHash, extract.CategoryNone, expr)
		if err != nil {
			return extract.BuilderConfig{}, fmt.Errorf("extract.hash_patterns[%d]: %w", i, err)
		}
		extra = append(extra, p)
	}
	for i, ap := range s.Extract.AddressPatterns {
		category, err := extract.ParseCategory(ap.Category)
		if err != nil {
			return extract.BuilderConfig{}, fmt.Errorf("extract.address_patterns[%d]: %w", i, err)
		}
		p, err := extract.CompilePattern(extract.KindAddress, category, ap.Pattern)
		if err != nil {
			return extract.BuilderConfig{}, fmt.Errorf("extract.address_patterns[%d]: %w", i, err)
		}
		extra = append(extra, p)
	}
	patterns := extract.DefaultPatterns().WithExtra(extra...)

	for i, r := range s.Extract.Networks {
		if internal.ParseNetwork(string(r.Network)) == internal.NetworkUnknown {
			return extract.BuilderConfig{}, fmt.Errorf("extract.networks[%d]: unknown network %q", i, r.Network)
		}
		if len(r.Indicators) == 0 {
			return extract.BuilderConfig{}, fmt.Errorf("extract.networks[%d]: indicators are required", i)
		}
	}

	var loss []*regexp.Regexp
	for i, expr := range s.Extract.LossPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return extract.BuilderConfig{}, fmt.Errorf("extract.loss_patterns[%d]: %w", i, err)
		}
		if re.NumSubexp() < 2 {
			return extract.BuilderConfig{}, fmt.Errorf("extract.loss_patterns[%d]: need amount and unit capture groups", i)
		}
		loss = append(loss, re)
	}

	return extract.BuilderConfig{
		Patterns:     &patterns,
		Networks:     s.Extract.Networks,
		LossPatterns: loss,
	}, nil
}
