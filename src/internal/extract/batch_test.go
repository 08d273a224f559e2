package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCoordinator_SkipsUnreadableFile(t *testing.T) {
	root := t.TempDir()
	a := writePoC(t, root, "2024-01", "A_exp", "// Attack Tx: 0x"+hashA+"\n")
	c := writePoC(t, root, "2024-01", "C_exp", "// Attack Tx: 0x"+hashB+"\n")

	// B 的内容不是合法 UTF-8，读取阶段即失败
	bDir := filepath.Join(root, "2024-01", "B_exp")
	require.NoError(t, os.MkdirAll(bDir, 0755))
	b := filepath.Join(bDir, "B_exp.sol")
	require.NoError(t, os.WriteFile(b, []byte{0xc3, 0x28}, 0644))

	coord := NewCoordinator(NewBuilder(BuilderConfig{}), 3, logging.Discard())
	result := coord.Run(context.Background(), []string{a, b, c})

	require.Len(t, result.Records, 2)
	projects := []string{result.Records[0].ProjectName, result.Records[1].ProjectName}
	assert.ElementsMatch(t, []string{"A_exp", "C_exp"}, projects)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, b, result.Failures[0].Path)
	assert.True(t, pipeerr.IsFileAccess(result.Failures[0].Err))
	assert.Empty(t, result.Skipped)
}

type slowBuilder struct {
	active  int32
	maxSeen int32
	calls   int32
}

func (s *slowBuilder) BuildFile(path string) (internal.EvidenceRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	cur := atomic.AddInt32(&s.active, 1)
	for {
		prev := atomic.LoadInt32(&s.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&s.maxSeen, prev, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)

	if filepath.Base(path) == "bad.sol" {
		return internal.EvidenceRecord{}, pipeerr.FileAccess(path, errors.New("boom"))
	}
	return internal.EvidenceRecord{SourcePath: path}, nil
}

func TestCoordinator_BoundedWorkers(t *testing.T) {
	builder := &slowBuilder{}
	paths := make([]string, 0, 20)
	for i := 0; i < 19; i++ {
		paths = append(paths, filepath.Join("p", string(rune('a'+i))+".sol"))
	}
	paths = append(paths, "p/bad.sol")

	result := NewCoordinator(builder, 2, logging.Discard()).Run(context.Background(), paths)

	assert.Len(t, result.Records, 19)
	assert.Len(t, result.Failures, 1)
	assert.LessOrEqual(t, atomic.LoadInt32(&builder.maxSeen), int32(2))
	assert.Equal(t, int32(20), atomic.LoadInt32(&builder.calls))
}

func TestCoordinator_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := &slowBuilder{}
	result := NewCoordinator(builder, 4, logging.Discard()).Run(ctx, []string{"a.sol", "b.sol"})

	assert.Empty(t, result.Records)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"a.sol", "b.sol"}, result.Skipped)
	assert.Equal(t, int32(0), atomic.LoadInt32(&builder.calls))
}

func TestNewCoordinator_WorkerBounds(t *testing.T) {
	assert.Equal(t, DefaultWorkers, NewCoordinator(&slowBuilder{}, 0, nil).Workers())
	assert.Equal(t, MaxWorkers, NewCoordinator(&slowBuilder{}, 100, nil).Workers())
	assert.Equal(t, 7, NewCoordinator(&slowBuilder{}, 7, nil).Workers())
}
