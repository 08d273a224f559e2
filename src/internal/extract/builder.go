package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// Builder 把单个 PoC 文件转换成 EvidenceRecord
type Builder struct {
	matcher    *Matcher
	classifier *Classifier
	loss       *LossExtractor
}

// BuilderConfig 构造 Builder 所需的规则表，零值字段使用默认表
type BuilderConfig struct {
	Patterns     *PatternSet
	Networks     NetworkTable
	LossPatterns []*regexp.Regexp
}

// NewBuilder 创建记录构建器
func NewBuilder(cfg BuilderConfig) *Builder {
	patterns := DefaultPatterns()
	if cfg.Patterns != nil {
		patterns = *cfg.Patterns
	}
	networks := cfg.Networks
	if len(networks) == 0 {
		networks = DefaultNetworkTable()
	}
	loss := cfg.LossPatterns
	if len(loss) == 0 {
		loss = DefaultLossPatterns()
	}

	return &Builder{
		matcher:    NewMatcher(patterns),
		classifier: NewClassifier(networks),
		loss:       NewLossExtractor(loss),
	}
}

// BuildFile 读取文件并构建记录
func (b *Builder) BuildFile(path string) (internal.EvidenceRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return internal.EvidenceRecord{}, pipeerr.FileAccess(path, err)
	}
	return b.Build(path, content)
}

// Build 从已读取的内容构建记录
//
// 父目录名作为项目名，祖父目录名作为日期。
func (b *Builder) Build(path string, content []byte) (internal.EvidenceRecord, error) {
	if !utf8.Valid(content) {
		return internal.EvidenceRecord{}, pipeerr.FileAccess(path, fmt.Errorf("内容不是合法的 UTF-8"))
	}
	text := string(content)

	projectDir := filepath.Dir(path)
	return internal.EvidenceRecord{
		SourcePath:          path,
		ProjectName:         filepath.Base(projectDir),
		ObservedDate:        filepath.Base(filepath.Dir(projectDir)),
		Network:             b.classifier.Classify(text),
		TxHashes:            b.matcher.Hashes(text),
		AttackerAddresses:   b.matcher.Addresses(text, CategoryAttacker),
		VulnerableContracts: b.matcher.Addresses(text, CategoryVulnerable),
		AttackContracts:     b.matcher.Addresses(text, CategoryAttack),
		EstimatedLoss:       b.loss.Extract(text),
		RawText:             text,
	}, nil
}
