package report

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/report/renderers"
	"github.com/admi-n/poc-excavator/src/internal/trace"
)

// DefaultExplorerURL 未配置浏览器的链使用的交易链接前缀
const DefaultExplorerURL = "https://etherscan.io/tx/"

// ExplorerRule 链到区块浏览器交易页前缀
type ExplorerRule struct {
	Network internal.Network `mapstructure:"network" yaml:"network"`
	TxURL   string           `mapstructure:"tx_url" yaml:"tx_url"`
}

// ExplorerTable 有序表，第一条匹配的规则胜出
type ExplorerTable []ExplorerRule

// DefaultExplorers 默认区块浏览器
func DefaultExplorers() ExplorerTable {
	return ExplorerTable{
		{internal.NetworkEthereum, "https://etherscan.io/tx/"},
		{internal.NetworkBSC, "https://bscscan.com/tx/"},
		{internal.NetworkPolygon, "https://polygonscan.com/tx/"},
		{internal.NetworkArbitrum, "https://arbiscan.io/tx/"},
		{internal.NetworkOptimism, "https://optimistic.etherscan.io/tx/"},
		{internal.NetworkBase, "https://basescan.org/tx/"},
		{internal.NetworkBlast, "https://blastscan.io/tx/"},
		{internal.NetworkAvalanche, "https://snowtrace.io/tx/"},
		{internal.NetworkFantom, "https://ftmscan.com/tx/"},
		{internal.NetworkLinea, "https://lineascan.build/tx/"},
	}
}

// URLFor 第一个交易哈希的浏览器链接，没有哈希时返回 "#"
func (t ExplorerTable) URLFor(network internal.Network, hashes []string) string {
	if len(hashes) == 0 {
		return "#"
	}
	for _, r := range t {
		if r.Network == network {
			return r.TxURL + hashes[0]
		}
	}
	return DefaultExplorerURL + hashes[0]
}

// Generator 报告生成器接口
type Generator interface {
	Generate(rec *internal.EvidenceRecord, ev trace.Evidence, analysis string) (string, error)
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct {
	normalizer *trace.Normalizer
	explorers  ExplorerTable
}

// NewMarkdownGenerator 创建markdown报告生成器，explorers 为空时使用默认表
func NewMarkdownGenerator(normalizer *trace.Normalizer, explorers ExplorerTable) *MarkdownGenerator {
	if normalizer == nil {
		normalizer = trace.NewNormalizer(trace.DefaultNormalizerConfig())
	}
	if len(explorers) == 0 {
		explorers = DefaultExplorers()
	}
	return &MarkdownGenerator{
		normalizer: normalizer,
		explorers:  explorers,
	}
}

// Generate 按固定顺序组装根因分析报告，分析文本原样嵌入
func (g *MarkdownGenerator) Generate(rec *internal.EvidenceRecord, ev trace.Evidence, analysis string) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("evidence record is required")
	}

	md := renderers.NewMarkdownRenderer()

	md.Title("DeFi Exploit Analysis Report")

	md.Section("📊", "Executive Summary").
		Field("Project", rec.ProjectName).
		Field("Date", rec.ObservedDate).
		Field("Network", cases.Title(language.English).String(string(rec.Network))).
		Field("Total Loss", rec.EstimatedLoss.String()).
		Break()

	md.Section("🎯", "Attack Overview").
		List("Transaction Hash(es)", rec.TxHashes).
		List("Attacker Address(es)", rec.AttackerAddresses).
		List("Vulnerable Contract(s)", rec.VulnerableContracts).
		List("Attack Contract(s)", rec.AttackContracts).
		Break()

	md.Section("🔍", "Technical Analysis").
		Paragraph(analysis).
		Break()

	md.Section("📈", "Transaction Trace Summary").
		Paragraph(g.normalizer.Normalize(ev)).
		Break()

	md.Section("🔗", "References").
		Field("POC File", rec.SourcePath).
		Link("Blockchain Explorer", "View Transaction", g.explorers.URLFor(rec.Network, rec.TxHashes)).
		Break()

	md.Rule().Italic("Generated by poc-excavator")

	return md.String(), nil
}
