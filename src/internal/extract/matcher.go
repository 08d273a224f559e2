package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/admi-n/poc-excavator/src/internal"
)

// IdentifierKind 匹配的十六进制标识符类型
type IdentifierKind int

const (
	KindHash    IdentifierKind = iota // 交易哈希，64 个十六进制字符
	KindAddress                       // 地址，40 个十六进制字符
)

// HexLen 不含 0x 前缀时要求的精确长度
func (k IdentifierKind) HexLen() int {
	if k == KindAddress {
		return 40
	}
	return 64
}

func (k IdentifierKind) String() string {
	if k == KindAddress {
		return "address"
	}
	return "hash"
}

// Category 地址的上下文类别
type Category string

const (
	CategoryNone       Category = ""
	CategoryAttacker   Category = "attacker"
	CategoryVulnerable Category = "vulnerable_contract"
	CategoryAttack     Category = "attack_contract"
)

// Pattern 单条匹配规则，命中取最后一个非空捕获组，没有捕获组时取整段匹配
type Pattern struct {
	Kind     IdentifierKind
	Category Category
	Expr     *regexp.Regexp
}

// AddressCategories 地址规则可用的类别
var AddressCategories = []Category{CategoryAttacker, CategoryVulnerable, CategoryAttack}

// ParseCategory 解析地址类别，只接受 AddressCategories 中的值
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AddressCategories {
		if c == known {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("未知的地址类别 %q (可选: attacker, vulnerable_contract, attack_contract)", s)
}

// CompilePattern 编译规则，统一加上大小写不敏感标记
//
// 地址规则必须带已知类别，否则 Matcher.Addresses 永远选不到它。
func CompilePattern(kind IdentifierKind, category Category, expr string) (Pattern, error) {
	if kind == KindAddress {
		if _, err := ParseCategory(string(category)); err != nil {
			return Pattern{}, err
		}
	}
	if !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("编译 %s 规则失败: %w", kind, err)
	}
	return Pattern{Kind: kind, Category: category, Expr: re}, nil
}

func mustPattern(kind IdentifierKind, category Category, expr string) Pattern {
	p, err := CompilePattern(kind, category, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// PatternSet 构造后不再修改的规则表
type PatternSet struct {
	Hash    []Pattern
	Address []Pattern
}

const explorerHosts = `etherscan\.io|bscscan\.com|polygonscan\.com|arbiscan\.io|ftmscan\.com|snowtrace\.io|blastscan\.io|lineascan\.build|basescan\.org|optimistic\.etherscan\.io`

// DefaultPatterns 默认规则表
//
// 最后一条哈希规则会匹配任意独立的 64 位十六进制串，bytes32 常量、
// 存储槽等也会被当成交易哈希，误报由下游追踪查询自然过滤。
func DefaultPatterns() PatternSet {
	return PatternSet{
		Hash: []Pattern{
			mustPattern(KindHash, CategoryNone, `https?://(?:`+explorerHosts+`)/tx/0x([0-9a-f]{64})\b`),
			mustPattern(KindHash, CategoryNone, `https?://(?:explorer\.phalcon\.xyz|app\.blocksec\.com|phalcon\.blocksec\.com)/(?:explorer/)?(?:tx/)?(?:(?:eth|bsc|polygon|arbitrum|optimism|base|blast|avax|ftm|linea)/)?(?:tx/)?0x([0-9a-f]{64})\b`),
			mustPattern(KindHash, CategoryNone, `(?:Attack Tx|Transaction|Tx).*?0x([0-9a-f]{64})\b`),
			mustPattern(KindHash, CategoryNone, `//.*?(?:tx|transaction).*?0x([0-9a-f]{64})\b`),
			mustPattern(KindHash, CategoryNone, `\b(?:0x)?([0-9a-f]{64})\b`),
		},
		Address: []Pattern{
			mustPattern(KindAddress, CategoryAttacker, `attacker[^\n]{0,100}?0x([0-9a-f]{40})\b`),
			mustPattern(KindAddress, CategoryVulnerable, `vulnerable[^\n]{0,100}?contract[^\n]{0,100}?0x([0-9a-f]{40})\b`),
			mustPattern(KindAddress, CategoryAttack, `attack[^\n]{0,100}?contract[^\n]{0,100}?0x([0-9a-f]{40})\b`),
		},
	}
}

// WithExtra 返回追加了额外规则的新规则表，原表不变
func (ps PatternSet) WithExtra(extra ...Pattern) PatternSet {
	out := PatternSet{
		Hash:    append([]Pattern(nil), ps.Hash...),
		Address: append([]Pattern(nil), ps.Address...),
	}
	for _, p := range extra {
		if p.Kind == KindAddress {
			out.Address = append(out.Address, p)
		} else {
			out.Hash = append(out.Hash, p)
		}
	}
	return out
}

// Matcher 在文本中查找交易哈希和地址
type Matcher struct {
	patterns PatternSet
}

// NewMatcher 创建匹配器
func NewMatcher(patterns PatternSet) *Matcher {
	return &Matcher{patterns: patterns}
}

// Hashes 所有哈希规则的命中并集
func (m *Matcher) Hashes(text string) []string {
	return MatchPatterns(text, m.patterns.Hash, KindHash)
}

// Addresses 指定类别的地址规则命中
func (m *Matcher) Addresses(text string, category Category) []string {
	var selected []Pattern
	for _, p := range m.patterns.Address {
		if p.Category == category {
			selected = append(selected, p)
		}
	}
	return MatchPatterns(text, selected, KindAddress)
}

// MatchPatterns 对一组规则求命中并集，过滤长度不符的候选，返回升序去重结果
func MatchPatterns(text string, patterns []Pattern, kind IdentifierKind) []string {
	var hits []string
	for _, p := range patterns {
		if p.Expr == nil {
			continue
		}
		for _, groups := range p.Expr.FindAllStringSubmatch(text, -1) {
			if v, ok := NormalizeHex(lastGroup(groups), kind); ok {
				hits = append(hits, v)
			}
		}
	}
	return internal.SortedSet(hits)
}

func lastGroup(groups []string) string {
	for i := len(groups) - 1; i > 0; i-- {
		if groups[i] != "" {
			return groups[i]
		}
	}
	return groups[0]
}

// NormalizeHex 去掉可选的 0x 前缀并转小写，长度必须精确等于 kind 要求
func NormalizeHex(candidate string, kind IdentifierKind) (string, bool) {
	body := strings.ToLower(strings.TrimSpace(candidate))
	body = strings.TrimPrefix(body, "0x")
	if len(body) != kind.HexLen() {
		return "", false
	}

	normalized := "0x" + body
	switch kind {
	case KindAddress:
		if !common.IsHexAddress(normalized) {
			return "", false
		}
	default:
		if _, err := hexutil.Decode(normalized); err != nil {
			return "", false
		}
	}
	return normalized, true
}
