package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	reply  string
	err    error
	calls  int
	closed bool
}

func (f *fakeClient) Analyze(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}
func (f *fakeClient) GetName() string { return "fake" }
func (f *fakeClient) Close() error    { f.closed = true; return nil }

func TestNormalizeProvider(t *testing.T) {
	for in, want := range map[string]string{
		"deepseek": ProviderDeepSeek,
		"GPT4":     ProviderOpenAI,
		"ollama":   ProviderLocalLLM,
		" gemini ": ProviderGemini,
	} {
		got, err := NormalizeProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	assert.Error(t, ValidateProvider("claude"))
}

func TestNewAIClient_MissingKey(t *testing.T) {
	_, err := NewAIClient(context.Background(), AIClientConfig{Provider: "deepseek"})
	assert.Error(t, err)

	c, err := NewAIClient(context.Background(), AIClientConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "Local LLM (llama3)", c.GetName())
	require.NoError(t, c.Close())
}

func TestManager_AnalyzeRootCause(t *testing.T) {
	fake := &fakeClient{reply: "## Root Cause\nunchecked price"}
	m := NewManagerWithClient(fake, 60, logging.Discard())
	defer m.Close()

	out, err := m.AnalyzeRootCause(context.Background(), "Foo_exp", "prompt")
	require.NoError(t, err)
	assert.Equal(t, fake.reply, out)
	assert.Equal(t, "fake", m.GetClientInfo())
	require.NoError(t, m.TestConnection(context.Background()))
	assert.Equal(t, 2, fake.calls)
}

func TestManager_EmptyAndFailed(t *testing.T) {
	m := NewManagerWithClient(&fakeClient{reply: "  \n"}, 60, logging.Discard())
	_, err := m.AnalyzeRootCause(context.Background(), "Foo_exp", "prompt")
	require.Error(t, err)
	assert.True(t, pipeerr.IsUnavailable(err))
	require.NoError(t, m.Close())

	fake := &fakeClient{err: errors.New("timeout")}
	m = NewManagerWithClient(fake, 60, logging.Discard())
	_, err = m.AnalyzeRootCause(context.Background(), "Foo_exp", "prompt")
	require.Error(t, err)
	assert.True(t, pipeerr.IsUnavailable(err))
	assert.ErrorContains(t, err, "timeout")
	require.NoError(t, m.Close())
	assert.True(t, fake.closed)
}

func TestManager_RateLimitHonoursContext(t *testing.T) {
	m := NewManagerWithClient(&fakeClient{reply: "ok"}, 1, logging.Discard())
	defer m.Close()

	_, err := m.AnalyzeRootCause(context.Background(), "a", "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.AnalyzeRootCause(ctx, "b", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
