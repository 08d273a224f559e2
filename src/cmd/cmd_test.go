package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/admi-n/poc-excavator/src/config"
	"github.com/admi-n/poc-excavator/src/internal"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

func TestWriteRecords(t *testing.T) {
	records := []internal.EvidenceRecord{{
		SourcePath:  "source/2024-01/Foo_exp/Foo_exp.sol",
		ProjectName: "Foo_exp",
		Network:     internal.NetworkBSC,
		TxHashes:    []string{"0x01"},
		RawText:     "contract Foo {}",
	}}

	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, "json", records))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Foo_exp", decoded[0]["project_name"])
	assert.NotContains(t, buf.String(), "contract Foo")

	buf.Reset()
	require.NoError(t, writeRecords(&buf, "yaml", records))
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, "bsc", fromYAML[0]["network"])

	buf.Reset()
	require.NoError(t, writeRecords(&buf, "json", nil))
	assert.Equal(t, "[]\n", buf.String())

	assert.Error(t, writeRecords(&buf, "xml", records))
}

func TestNewCoordinator(t *testing.T) {
	logger = logging.Discard()
	s := config.GetDefaultSettings()
	s.Pipeline.Workers = 4
	s.Extract.HashPatterns = []string{`tx=0x([0-9a-f]{64})`}
	s.Extract.AddressPatterns = []config.AddressPatternConfig{{Category: "attacker", Pattern: `hacker\s*=\s*(0x[0-9a-f]{40})`}}

	coord, err := newCoordinator(s)
	require.NoError(t, err)
	assert.Equal(t, 4, coord.Workers())

	s.Extract.HashPatterns = []string{`(`}
	_, err = newCoordinator(s)
	assert.Error(t, err)

	s.Extract.HashPatterns = nil
	s.Extract.AddressPatterns = []config.AddressPatternConfig{{Category: "victim", Pattern: `victim\s*=\s*(0x[0-9a-f]{40})`}}
	_, err = newCoordinator(s)
	assert.ErrorContains(t, err, "extract.address_patterns[0]")
}

func TestRootCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "analyze", "single", "list", "progress"} {
		assert.True(t, names[want], want)
	}

	f := singleCmd.Flags().Lookup("reasoning")
	require.NotNil(t, f)
	assert.Equal(t, "true", f.DefValue)
}
