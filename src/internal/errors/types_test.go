package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineError_Error(t *testing.T) {
	// 没有原因的错误
	err := New(KindConfig, StageRead, "", "缺少配置")
	assert.Equal(t, "[CONFIG/read]: 缺少配置", err.Error())

	// 有原因的错误
	cause := stderrors.New("permission denied")
	wrapped := FileAccess("source/2024-01/Foo_exp/Foo_exp.sol", cause)
	assert.Equal(t, "[FILE_ACCESS/read] source/2024-01/Foo_exp/Foo_exp.sol: 读取文件失败: permission denied", wrapped.Error())
}

func TestPipelineError_Unwrap(t *testing.T) {
	cause := stderrors.New("timeout")
	err := Unavailable(StageTrace, "0xabc", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
	assert.Nil(t, New(KindStorage, StageStore, "", "x").Unwrap())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("外层: %w", FileAccess("a.sol", stderrors.New("boom")))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindFileAccess, kind)
	assert.True(t, IsFileAccess(err))
	assert.False(t, IsUnavailable(err))

	_, ok = KindOf(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestWithContext(t *testing.T) {
	err := Unavailable(StageAnalysis, "Foo", nil).WithContext("provider", "deepseek")
	assert.Equal(t, "deepseek", err.Context["provider"])
	assert.Equal(t, "EXTERNAL_UNAVAILABLE", err.Kind.String())
}
