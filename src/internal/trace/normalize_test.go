package trace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Absent(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	assert.Equal(t, NoTraceData, n.Normalize(nil))
	assert.Equal(t, NoTraceData, n.Normalize(Evidence{}))
}

func TestNormalize_OverviewAlwaysFirst(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	out := n.Normalize(Evidence{"transaction_id": "0xabc"})

	assert.True(t, strings.HasPrefix(out, "### Transaction Overview\n"))
	assert.Contains(t, out, "- **Transaction ID**: 0xabc")
	assert.Contains(t, out, "- **Block Number**: N/A")
	assert.Contains(t, out, "- **Gas Used**: N/A")
	assert.NotContains(t, out, "Asset Changes")
	assert.NotContains(t, out, "Main Call Trace Details")
}

func TestNormalize_AssetChangesCapped(t *testing.T) {
	changes := make([]any, 40)
	for i := range changes {
		changes[i] = map[string]any{"type": "Transfer", "amount": fmt.Sprint(i)}
	}

	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(Evidence{"asset_changes": changes})

	assert.Contains(t, out, "### Asset Changes (40 total)")
	assert.Equal(t, 25, strings.Count(out, "**Asset Change #"))
	assert.Contains(t, out, "**Asset Change #25:**")
	assert.NotContains(t, out, "**Asset Change #26:**")
	// 缺失字段显示 N/A 而不是省略
	assert.Contains(t, out, "  - Token: N/A (N/A)")
	assert.Contains(t, out, "  - From: N/A")
}

func TestNormalize_CustomCaps(t *testing.T) {
	logs := []any{
		map[string]any{"address": "0x1", "data": strings.Repeat("f", 30)},
		map[string]any{"address": "0x2"},
		map[string]any{"address": "0x3"},
	}

	out := NewNormalizer(NormalizerConfig{Logs: 2, ItemClip: 10}).Normalize(Evidence{"logs": logs})

	assert.Equal(t, 2, strings.Count(out, "**Event #"))
	assert.Contains(t, out, "  - Data: ffffffffff...")
	assert.Contains(t, out, "  - Data: N/A")
}

func TestNormalize_CallsAndMainTrace(t *testing.T) {
	input := "0x" + strings.Repeat("a", 300)
	ev := Evidence{
		"block_number": float64(17000000),
		"call_trace": map[string]any{
			"gas_used":  float64(123456),
			"call_type": "CALL",
			"input":     input,
			"calls": []any{
				map[string]any{"call_type": "DELEGATECALL", "function_name": "swap", "input": input},
			},
		},
	}

	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(ev)

	assert.Contains(t, out, "- **Block Number**: 17000000")
	assert.Contains(t, out, "- **Gas Used**: 123456")
	assert.Contains(t, out, "### Function Calls (1 total)")
	assert.Contains(t, out, "  - Function Name: swap")
	assert.Contains(t, out, "  - Input Data: "+input[:100]+"...")
	assert.Contains(t, out, "- **Input**: "+input[:200]+"...")
	// 没有 output 时不输出该行
	assert.NotContains(t, out, "  - Output: ")
}

func TestNormalize_MalformedShapes(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	inputs := []Evidence{
		{"asset_changes": "not a list"},
		{"asset_changes": []any{nil, 42, "x", []any{1}}},
		{"call_trace": []any{"wrong"}},
		{"call_trace": map[string]any{"calls": map[string]any{"0": 1}}},
		{"logs": []any{map[string]any{"topics": map[string]any{"a": []any{1.5, nil}}}}},
		{"metadata": "text", "state_diff": []any{map[string]any{}}},
		{"balance_changes": []any{map[string]any{"diff": map[string]any{"nested": map[string]any{"deep": true}}}}},
	}

	for i, ev := range inputs {
		require.NotPanics(t, func() { n.Normalize(ev) }, "input %d", i)
		assert.True(t, strings.HasPrefix(n.Normalize(ev), "### Transaction Overview"), "input %d", i)
	}
}

func TestNormalize_NonMapItemsRenderPlaceholders(t *testing.T) {
	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(Evidence{"balance_changes": []any{"junk"}})

	assert.Contains(t, out, "**Balance Change #1:**")
	assert.Contains(t, out, "  - Address: N/A")
	assert.Contains(t, out, "  - Difference: N/A")
}

func TestNormalize_MetadataSorted(t *testing.T) {
	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(Evidence{
		"metadata": map[string]any{"z": "last", "a": "first"},
	})

	require.Contains(t, out, "### Additional Metadata")
	assert.Less(t, strings.Index(out, "- **a**: first"), strings.Index(out, "- **z**: last"))
}

func TestRender(t *testing.T) {
	assert.Equal(t, "N/A", render(nil))
	assert.Equal(t, "1000000000000000000", render(float64(1e18)))
	assert.Equal(t, "0.5", render(0.5))
	assert.Equal(t, "true", render(true))
	assert.Equal(t, "[0x1, N/A]", render([]any{"0x1", nil}))
	assert.Equal(t, `{"k":"v"}`, render(map[string]any{"k": "v"}))
	assert.Equal(t, "7", render(uint64(7)))
}

func TestDecodeEvidence(t *testing.T) {
	ev, err := DecodeEvidenceBytes([]byte(`{"block_number": 123456789012345678901, "value": "0x0"}`))
	require.NoError(t, err)

	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(ev)
	assert.Contains(t, out, "- **Block Number**: 123456789012345678901")

	_, err = DecodeEvidenceBytes([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = DecodeEvidenceBytes([]byte(`{`))
	assert.Error(t, err)
}
