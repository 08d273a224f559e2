package extract

import (
	"strings"

	"github.com/admi-n/poc-excavator/src/internal"
)

// NetworkRule 一条链及其识别关键字
type NetworkRule struct {
	Network    internal.Network `mapstructure:"network" yaml:"network"`
	Indicators []string         `mapstructure:"indicators" yaml:"indicators"`
}

// NetworkTable 有序规则表，第一条命中的规则胜出
type NetworkTable []NetworkRule

// DefaultNetworkTable 默认链识别表
//
// 顺序决定重叠时的结果：optimistic.etherscan.io 含 etherscan.io 会判为 ethereum，
// "base" 也会命中 database 之类的单词。
func DefaultNetworkTable() NetworkTable {
	return NetworkTable{
		{internal.NetworkEthereum, []string{"etherscan.io", "mainnet", "eth_", `createSelectFork("mainnet"`}},
		{internal.NetworkBSC, []string{"bscscan.com", "bsc", "bnb", `createSelectFork("bsc"`}},
		{internal.NetworkPolygon, []string{"polygonscan.com", "polygon", "matic", `createSelectFork("polygon"`}},
		{internal.NetworkArbitrum, []string{"arbiscan.io", "arbitrum", `createSelectFork("arbitrum"`}},
		{internal.NetworkOptimism, []string{"optimistic.etherscan.io", "optimism", `createSelectFork("optimism"`}},
		{internal.NetworkBase, []string{"basescan.org", "base", `createSelectFork("base"`}},
		{internal.NetworkBlast, []string{"blastscan.io", "blast", `createSelectFork("blast"`}},
		{internal.NetworkAvalanche, []string{"snowtrace.io", "avalanche", "avax", `createSelectFork("avalanche"`}},
		{internal.NetworkFantom, []string{"ftmscan.com", "fantom", `createSelectFork("fantom"`}},
		{internal.NetworkLinea, []string{"lineascan.build", "linea", `createSelectFork("linea"`}},
	}
}

// Classifier 根据文本内容判断攻击所在链
type Classifier struct {
	rules NetworkTable
}

// NewClassifier 创建分类器，关键字在构造时统一转小写
func NewClassifier(table NetworkTable) *Classifier {
	rules := make(NetworkTable, 0, len(table))
	for _, r := range table {
		lowered := make([]string, 0, len(r.Indicators))
		for _, ind := range r.Indicators {
			if ind = strings.ToLower(ind); ind != "" {
				lowered = append(lowered, ind)
			}
		}
		rules = append(rules, NetworkRule{Network: r.Network, Indicators: lowered})
	}
	return &Classifier{rules: rules}
}

// Classify 返回第一条命中规则的链，全部未命中返回 unknown
func (c *Classifier) Classify(text string) internal.Network {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, ind := range r.Indicators {
			if strings.Contains(lower, ind) {
				return r.Network
			}
		}
	}
	return internal.NetworkUnknown
}
