package internal

import (
	"path/filepath"
	"sort"
	"strings"
)

// Network 攻击发生的链标签
type Network string

const (
	NetworkUnknown   Network = "unknown"
	NetworkEthereum  Network = "ethereum"
	NetworkBSC       Network = "bsc"
	NetworkPolygon   Network = "polygon"
	NetworkArbitrum  Network = "arbitrum"
	NetworkOptimism  Network = "optimism"
	NetworkBase      Network = "base"
	NetworkBlast     Network = "blast"
	NetworkAvalanche Network = "avalanche"
	NetworkFantom    Network = "fantom"
	NetworkLinea     Network = "linea"
)

// AllNetworks 按分类优先级排列的已知链
var AllNetworks = []Network{
	NetworkEthereum, NetworkBSC, NetworkPolygon, NetworkArbitrum, NetworkOptimism,
	NetworkBase, NetworkBlast, NetworkAvalanche, NetworkFantom, NetworkLinea,
}

// ParseNetwork 将字符串解析为 Network，未知值返回 NetworkUnknown
func ParseNetwork(s string) Network {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllNetworks {
		if n == known {
			return n
		}
	}
	return NetworkUnknown
}

// LossAmount PoC 注释中声明的损失金额
type LossAmount struct {
	Amount string `json:"amount" yaml:"amount"` // 原样保留千分位，例如 "1,234.56"
	Unit   string `json:"unit" yaml:"unit"`     // 例如 "USDC" 或 "$"
}

func (l *LossAmount) String() string {
	if l == nil {
		return "Unknown"
	}
	if l.Unit == "$" {
		return "$" + l.Amount
	}
	return l.Amount + " " + l.Unit
}

// EvidenceRecord 从单个 PoC 文件提取出的结构化证据
//
// 所有十六进制集合均已去重、小写、带 0x 前缀并升序排列，
// 同样的输入总是得到逐字节相同的记录。
type EvidenceRecord struct {
	SourcePath          string      `json:"source_path" yaml:"source_path"`
	ProjectName         string      `json:"project_name" yaml:"project_name"`
	ObservedDate        string      `json:"observed_date" yaml:"observed_date"`
	Network             Network     `json:"network" yaml:"network"`
	TxHashes            []string    `json:"tx_hashes" yaml:"tx_hashes"`
	AttackerAddresses   []string    `json:"attacker_addresses" yaml:"attacker_addresses"`
	VulnerableContracts []string    `json:"vulnerable_contracts" yaml:"vulnerable_contracts"`
	AttackContracts     []string    `json:"attack_contracts" yaml:"attack_contracts"`
	EstimatedLoss       *LossAmount `json:"estimated_loss,omitempty" yaml:"estimated_loss,omitempty"`
	RawText             string      `json:"-" yaml:"-"`
}

// HasHashes 记录是否至少包含一个交易哈希
func (r *EvidenceRecord) HasHashes() bool {
	return r != nil && len(r.TxHashes) > 0
}

// SourceDir PoC 文件所在目录，报告写在这里
func (r *EvidenceRecord) SourceDir() string {
	return filepath.Dir(r.SourcePath)
}

// SortedSet 返回去重并升序排列的副本，nil 输入返回空切片
func SortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
