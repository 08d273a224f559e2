package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

func writePoC(t *testing.T, root, date, project, content string) string {
	t.Helper()
	dir := filepath.Join(root, date, project)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, project+".sol")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const bscPoC = `// SPDX-License-Identifier: UNLICENSED
pragma solidity ^0.8.10;

// Total Lost: 1,234.56 USDC
// Attack Tx: https://bscscan.com/tx/0x%s

contract ContractTest is Test {
    function setUp() public {}
}
`

func TestBuilder_BscScenario(t *testing.T) {
	root := t.TempDir()
	path := writePoC(t, root, "2024-03", "Foo_exp", strings.Replace(bscPoC, "%s", hashA, 1))

	rec, err := NewBuilder(BuilderConfig{}).BuildFile(path)
	require.NoError(t, err)

	assert.Equal(t, internal.NetworkBSC, rec.Network)
	assert.Equal(t, []string{"0x" + hashA}, rec.TxHashes)
	require.NotNil(t, rec.EstimatedLoss)
	assert.Equal(t, internal.LossAmount{Amount: "1,234.56", Unit: "USDC"}, *rec.EstimatedLoss)
	assert.Equal(t, "Foo_exp", rec.ProjectName)
	assert.Equal(t, "2024-03", rec.ObservedDate)
	assert.Equal(t, path, rec.SourcePath)
	assert.True(t, rec.HasHashes())
}

func TestBuilder_AttackerContext(t *testing.T) {
	root := t.TempDir()
	withKeyword := writePoC(t, root, "2024-01", "A_exp", "// Attacker: 0x"+addrA+"\n")
	bare := writePoC(t, root, "2024-01", "B_exp", "address constant target = 0x"+addrB+";\n")

	b := NewBuilder(BuilderConfig{})

	first, err := b.BuildFile(withKeyword)
	require.NoError(t, err)
	second, err := b.BuildFile(bare)
	require.NoError(t, err)

	assert.Equal(t, []string{"0x" + addrA}, first.AttackerAddresses)
	assert.Empty(t, second.AttackerAddresses)
	assert.Nil(t, second.EstimatedLoss)
	assert.Empty(t, second.TxHashes)
}

func TestBuilder_Deterministic(t *testing.T) {
	content := []byte("// Tx: 0x" + hashB + "\n// Tx: 0x" + hashA + "\n// Attacker 0x" + addrB + "\n// attacker 0x" + addrA + "\n")
	b := NewBuilder(BuilderConfig{})

	first, err := b.Build("source/2024-05/Bar_exp/Bar_exp.sol", content)
	require.NoError(t, err)
	second, err := b.Build("source/2024-05/Bar_exp/Bar_exp.sol", content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"0x" + hashB, "0x" + hashA}, first.TxHashes)
	assert.Equal(t, []string{"0x" + addrB, "0x" + addrA}, first.AttackerAddresses)
}

func TestBuilder_FileAccessErrors(t *testing.T) {
	b := NewBuilder(BuilderConfig{})

	_, err := b.BuildFile(filepath.Join(t.TempDir(), "missing", "Gone_exp.sol"))
	require.Error(t, err)
	assert.True(t, pipeerr.IsFileAccess(err))

	_, err = b.Build("x/y/Bad_exp.sol", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.True(t, pipeerr.IsFileAccess(err))
}

func TestBuilder_CustomTables(t *testing.T) {
	b := NewBuilder(BuilderConfig{
		Networks: NetworkTable{{Network: internal.NetworkLinea, Indicators: []string{"LINEA"}}},
	})

	rec, err := b.Build("d/p/p.sol", []byte("deployed on linea"))
	require.NoError(t, err)
	assert.Equal(t, internal.NetworkLinea, rec.Network)

	rec, err = b.Build("d/p/p.sol", []byte("etherscan.io"))
	require.NoError(t, err)
	assert.Equal(t, internal.NetworkUnknown, rec.Network)
}
