package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// NoTraceData 没有追踪数据时的固定输出
const NoTraceData = "No trace data available"

const notAvailable = "N/A"

// Evidence 追踪服务返回的原始嵌套数据，任何层级都可能缺失或类型不符
type Evidence map[string]any

// NormalizerConfig 各分区最多渲染的条目数以及十六进制载荷的截断长度
type NormalizerConfig struct {
	AssetChanges   int `mapstructure:"asset_changes" yaml:"asset_changes"`
	BalanceChanges int `mapstructure:"balance_changes" yaml:"balance_changes"`
	Calls          int `mapstructure:"calls" yaml:"calls"`
	Logs           int `mapstructure:"logs" yaml:"logs"`
	StateDiff      int `mapstructure:"state_diff" yaml:"state_diff"`
	ItemClip       int `mapstructure:"item_clip" yaml:"item_clip"`
	MainClip       int `mapstructure:"main_clip" yaml:"main_clip"`
}

// DefaultNormalizerConfig 默认上限
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		AssetChanges:   25,
		BalanceChanges: 15,
		Calls:          15,
		Logs:           20,
		StateDiff:      15,
		ItemClip:       100,
		MainClip:       200,
	}
}

func (c NormalizerConfig) withDefaults() NormalizerConfig {
	d := DefaultNormalizerConfig()
	if c.AssetChanges <= 0 {
		c.AssetChanges = d.AssetChanges
	}
	if c.BalanceChanges <= 0 {
		c.BalanceChanges = d.BalanceChanges
	}
	if c.Calls <= 0 {
		c.Calls = d.Calls
	}
	if c.Logs <= 0 {
		c.Logs = d.Logs
	}
	if c.StateDiff <= 0 {
		c.StateDiff = d.StateDiff
	}
	if c.ItemClip <= 0 {
		c.ItemClip = d.ItemClip
	}
	if c.MainClip <= 0 {
		c.MainClip = d.MainClip
	}
	return c
}

// Normalizer 把追踪数据整理成长度受控的 markdown 文本
type Normalizer struct {
	cfg NormalizerConfig
}

// NewNormalizer 创建整理器，未设置的上限使用默认值
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	return &Normalizer{cfg: cfg.withDefaults()}
}

// Normalize 渲染追踪数据
//
// 概览字段总是最先输出，缺失值显示 N/A；其余分区只有非空时才输出，
// 超过上限的条目直接省略。任何输入结构都不会 panic。
func (n *Normalizer) Normalize(ev Evidence) string {
	if len(ev) == 0 {
		return NoTraceData
	}

	w := &sectionWriter{}
	root := map[string]any(ev)
	callTrace := asMap(root["call_trace"])

	w.heading("Transaction Overview")
	w.field("Transaction ID", root["transaction_id"])
	w.field("Block Number", root["block_number"])
	w.field("Contract Address", root["contract_address"])
	w.field("Gas Used", lookup(callTrace, "gas_used"))
	w.field("Gas Limit", root["gas_limit"])
	w.field("Gas Price", root["gas_price"])
	w.field("Value", root["value"])
	w.blank()

	n.assetChanges(w, asList(root["asset_changes"]))
	n.balanceChanges(w, asList(root["balance_changes"]))
	n.calls(w, asList(lookup(callTrace, "calls")))
	n.logs(w, asList(root["logs"]))
	n.stateDiff(w, asList(root["state_diff"]))
	n.mainCall(w, callTrace)
	n.metadata(w, asMap(root["metadata"]))

	return strings.TrimRight(w.String(), "\n")
}

func (n *Normalizer) assetChanges(w *sectionWriter, items []any) {
	if len(items) == 0 {
		return
	}
	w.heading(fmt.Sprintf("Asset Changes (%d total)", len(items)))
	for i, raw := range capped(items, n.cfg.AssetChanges) {
		item := asMap(raw)
		token := asMap(lookup(item, "token_info"))
		w.item(fmt.Sprintf("Asset Change #%d", i+1))
		w.sub("Type", lookup(item, "type"))
		w.subText("Token", fmt.Sprintf("%s (%s)", render(lookup(token, "symbol")), render(lookup(token, "name"))))
		w.sub("Token Contract", lookup(token, "address"))
		w.sub("Decimals", lookup(token, "decimals"))
		w.sub("Amount", lookup(item, "amount"))
		w.sub("Raw Amount", lookup(item, "raw_amount"))
		w.sub("USD Value", lookup(item, "dollar_value"))
		w.sub("From", lookup(item, "from"))
		w.sub("To", lookup(item, "to"))
		if present(lookup(item, "trace_address")) {
			w.sub("Trace Address", lookup(item, "trace_address"))
		}
		w.blank()
	}
}

func (n *Normalizer) balanceChanges(w *sectionWriter, items []any) {
	if len(items) == 0 {
		return
	}
	w.heading(fmt.Sprintf("Balance Changes (%d total)", len(items)))
	for i, raw := range capped(items, n.cfg.BalanceChanges) {
		item := asMap(raw)
		w.item(fmt.Sprintf("Balance Change #%d", i+1))
		w.sub("Address", lookup(item, "address"))
		w.sub("Before", lookup(item, "before"))
		w.sub("After", lookup(item, "after"))
		w.sub("Difference", lookup(item, "diff"))
		w.blank()
	}
}

func (n *Normalizer) calls(w *sectionWriter, items []any) {
	if len(items) == 0 {
		return
	}
	w.heading(fmt.Sprintf("Function Calls (%d total)", len(items)))
	for i, raw := range capped(items, n.cfg.Calls) {
		item := asMap(raw)
		w.item(fmt.Sprintf("Call #%d", i+1))
		w.sub("Type", lookup(item, "call_type"))
		w.sub("From", lookup(item, "from"))
		w.sub("To", lookup(item, "to"))
		w.sub("Value", lookup(item, "value"))
		w.sub("Gas Used", lookup(item, "gas_used"))
		w.sub("Gas", lookup(item, "gas"))
		w.sub("Function", lookup(item, "function_op"))
		w.sub("Function Name", lookup(item, "function_name"))
		if present(lookup(item, "input")) {
			w.subText("Input Data", clip(render(lookup(item, "input")), n.cfg.ItemClip))
		}
		if present(lookup(item, "output")) {
			w.subText("Output", clip(render(lookup(item, "output")), n.cfg.ItemClip))
		}
		w.blank()
	}
}

func (n *Normalizer) logs(w *sectionWriter, items []any) {
	if len(items) == 0 {
		return
	}
	w.heading(fmt.Sprintf("Event Logs (%d total)", len(items)))
	for i, raw := range capped(items, n.cfg.Logs) {
		item := asMap(raw)
		w.item(fmt.Sprintf("Event #%d", i+1))
		w.sub("Address", lookup(item, "address"))
		w.sub("Topics", lookup(item, "topics"))
		w.subText("Data", clip(render(lookup(item, "data")), n.cfg.ItemClip))
		if present(lookup(item, "decoded")) {
			w.sub("Decoded", lookup(item, "decoded"))
		}
		w.blank()
	}
}

func (n *Normalizer) stateDiff(w *sectionWriter, items []any) {
	if len(items) == 0 {
		return
	}
	w.heading(fmt.Sprintf("State Changes (%d modifications)", len(items)))
	for i, raw := range capped(items, n.cfg.StateDiff) {
		item := asMap(raw)
		w.item(fmt.Sprintf("State Change #%d", i+1))
		w.sub("Address", lookup(item, "address"))
		w.sub("Key", lookup(item, "key"))
		w.sub("Before", lookup(item, "before"))
		w.sub("After", lookup(item, "after"))
		w.blank()
	}
}

func (n *Normalizer) mainCall(w *sectionWriter, call map[string]any) {
	if len(call) == 0 {
		return
	}
	w.heading("Main Call Trace Details")
	w.field("From", call["from"])
	w.field("To", call["to"])
	w.field("Value", call["value"])
	w.field("Gas", call["gas"])
	w.field("Gas Used", call["gas_used"])
	w.field("Call Type", call["call_type"])
	if present(call["input"]) {
		w.fieldText("Input", clip(render(call["input"]), n.cfg.MainClip))
	}
	if present(call["output"]) {
		w.fieldText("Output", clip(render(call["output"]), n.cfg.MainClip))
	}
	w.blank()
}

func (n *Normalizer) metadata(w *sectionWriter, meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.heading("Additional Metadata")
	for _, k := range keys {
		w.field(k, meta[k])
	}
	w.blank()
}

type sectionWriter struct {
	strings.Builder
}

func (w *sectionWriter) heading(title string) {
	w.WriteString("### " + title + "\n")
}

func (w *sectionWriter) field(label string, v any) {
	w.fieldText(label, render(v))
}

func (w *sectionWriter) fieldText(label, text string) {
	fmt.Fprintf(w, "- **%s**: %s\n", label, text)
}

func (w *sectionWriter) item(title string) {
	w.WriteString("**" + title + ":**\n")
}

func (w *sectionWriter) sub(label string, v any) {
	w.subText(label, render(v))
}

func (w *sectionWriter) subText(label, text string) {
	fmt.Fprintf(w, "  - %s: %s\n", label, text)
}

func (w *sectionWriter) blank() {
	w.WriteString("\n")
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Evidence:
		return m
	}
	return nil
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func capped(items []any, max int) []any {
	if len(items) > max {
		return items[:max]
	}
	return items
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case bool:
		return t
	}
	return true
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// render 把任意 JSON 值转成单行文本，缺失值为 N/A，整数浮点不使用科学计数法
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return notAvailable
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = render(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
