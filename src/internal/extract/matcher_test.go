package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/poc-excavator/src/internal"
)

var (
	hashA = strings.Repeat("ab", 32)
	hashB = strings.Repeat("1f", 32)
	addrA = strings.Repeat("c4", 20)
	addrB = strings.Repeat("9e", 20)
)

func TestMatcher_HashContexts(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	text := strings.Join([]string{
		"// Attack Tx : https://etherscan.io/tx/0x" + hashA,
		"// Tx: 0x" + strings.ToUpper(hashA), // 大小写不同的重复值
		"// transaction https://app.blocksec.com/explorer/tx/eth/0x" + hashB,
	}, "\n")

	assert.Equal(t, []string{"0x" + hashB, "0x" + hashA}, m.Hashes(text))
}

func TestMatcher_ContextHashWithoutPrefix(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	assert.Equal(t, []string{"0x" + hashA}, m.Hashes("// Attack Tx: "+hashA))
	// 带前缀和不带前缀的同一个哈希只保留一份
	assert.Equal(t, []string{"0x" + hashA}, m.Hashes("// Attack Tx: 0x"+hashA+"\n// Attack Tx: "+hashA))
}

func TestMatcher_RejectsWrongLength(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	short := hashA[:63]
	long := hashA + "a"
	text := "// Attack Tx: 0x" + short + "\n// Tx: 0x" + long + "\n"

	assert.Empty(t, m.Hashes(text))
}

func TestMatcher_BareHashFallback(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	// 没有任何上下文关键字的 64 位串也会被收录
	text := "bytes32 constant SLOT = 0x" + hashB + ";"
	assert.Equal(t, []string{"0x" + hashB}, m.Hashes(text))

	// 更长的字节码片段中不会切出 64 位子串
	assert.Empty(t, m.Hashes("bytecode = hex\""+hashA+hashB+"\";"))
}

func TestMatcher_AddressCategories(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	text := strings.Join([]string{
		"// Attacker : https://etherscan.io/address/0x" + addrA,
		"// Vulnerable Contract : https://etherscan.io/address/0x" + addrB,
		"address constant unrelated = 0x" + strings.Repeat("77", 20) + ";",
	}, "\n")

	assert.Equal(t, []string{"0x" + addrA}, m.Addresses(text, CategoryAttacker))
	assert.Equal(t, []string{"0x" + addrB}, m.Addresses(text, CategoryVulnerable))
	assert.Empty(t, m.Addresses(text, CategoryAttack))
}

func TestMatcher_AttackContractNeedsKeywordOnSameLine(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	sameLine := "// Attack Contract : 0x" + addrA
	splitLine := "// Attack\n// Contract : 0x" + addrB

	assert.Equal(t, []string{"0x" + addrA}, m.Addresses(sameLine, CategoryAttack))
	assert.Empty(t, m.Addresses(splitLine, CategoryAttack))
}

func TestNormalizeHex(t *testing.T) {
	v, ok := NormalizeHex("0X"+strings.ToUpper(addrA), KindAddress)
	require.True(t, ok)
	assert.Equal(t, "0x"+addrA, v)

	_, ok = NormalizeHex(addrA, KindHash)
	assert.False(t, ok)

	_, ok = NormalizeHex(strings.Repeat("zz", 20), KindAddress)
	assert.False(t, ok)
}

func TestPatternSet_WithExtra(t *testing.T) {
	base := DefaultPatterns()
	extra, err := CompilePattern(KindAddress, CategoryAttacker, `exploiter\s*=\s*0x([0-9a-f]{40})\b`)
	require.NoError(t, err)

	extended := base.WithExtra(extra)
	assert.Len(t, extended.Address, len(base.Address)+1)
	assert.Len(t, base.Address, 3)

	m := NewMatcher(extended)
	assert.Equal(t, []string{"0x" + addrB}, m.Addresses("exploiter = 0x"+addrB, CategoryAttacker))

	_, err = CompilePattern(KindHash, CategoryNone, `(`)
	assert.Error(t, err)
}

func TestCompilePattern_AddressCategory(t *testing.T) {
	victim := `victim[^\n]{0,100}?0x([0-9a-f]{40})\b`

	for _, bad := range []Category{"victim", "vulnerable", CategoryNone} {
		_, err := CompilePattern(KindAddress, bad, victim)
		assert.Error(t, err, string(bad))
	}

	p, err := CompilePattern(KindAddress, CategoryVulnerable, victim)
	require.NoError(t, err)
	m := NewMatcher(PatternSet{}.WithExtra(p))
	assert.Equal(t, []string{"0x" + addrA}, m.Addresses("victim 0x"+addrA, CategoryVulnerable))

	c, err := ParseCategory(" Attack_Contract ")
	require.NoError(t, err)
	assert.Equal(t, CategoryAttack, c)
	_, err = ParseCategory("")
	assert.ErrorContains(t, err, "attacker")
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(DefaultNetworkTable())

	tests := []struct {
		name string
		text string
		want internal.Network
	}{
		{"bscscan", "https://BSCSCAN.com/tx/0x1", internal.NetworkBSC},
		{"fork literal", `vm.createSelectFork("arbitrum", 1);`, internal.NetworkArbitrum},
		{"upper case", `VM.CREATESELECTFORK("MAINNET")`, internal.NetworkEthereum},
		{"appended chains", "see snowtrace.io", internal.NetworkAvalanche},
		{"optimistic overlaps ethereum", "https://optimistic.etherscan.io/tx/0x1", internal.NetworkEthereum},
		{"nothing", "pragma solidity ^0.8.10;", internal.NetworkUnknown},
		{"empty", "", internal.NetworkUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestLossExtractor(t *testing.T) {
	e := NewLossExtractor(DefaultLossPatterns())

	got := e.Extract("// Total Lost : 1,234.56 USDC")
	require.NotNil(t, got)
	assert.Equal(t, internal.LossAmount{Amount: "1,234.56", Unit: "USDC"}, *got)

	got = e.Extract("// Total Lost: $1,000 USD")
	require.NotNil(t, got)
	assert.Equal(t, "1,000", got.Amount)
	assert.Equal(t, "USD", got.Unit)

	got = e.Extract("// lost 12 WETH in total")
	require.NotNil(t, got)
	assert.Equal(t, "12 WETH", got.String())

	assert.Nil(t, e.Extract("// nothing to see"))
}
