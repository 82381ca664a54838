package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/vault"
)

type stubProvider struct {
	models []string
	err    error
}

func (s stubProvider) Complete(context.Context, provider.Request) (*provider.Response, error) {
	return nil, errors.New("not used")
}

func (s stubProvider) Stream(context.Context, provider.Request) (<-chan provider.StreamChunk, error) {
	return nil, errors.New("not used")
}

func (s stubProvider) Name() string      { return "lmstudio" }
func (s stubProvider) ModelName() string { return "qwen" }
func (s stubProvider) Models(context.Context) ([]string, error) {
	return s.models, s.err
}

func newVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), "")
	require.NoError(t, err)
	return v
}

func TestCheckVault(t *testing.T) {
	s := CheckVault(newVault(t))
	assert.True(t, s.OK, s.Detail)
	assert.Equal(t, "vault", s.Name)
}

func TestCheckMemory(t *testing.T) {
	v := newVault(t)
	s := CheckMemory(v)
	assert.True(t, s.OK)
	assert.Contains(t, s.Detail, "not initialized")

	require.NoError(t, v.EnsureStructure())
	s = CheckMemory(v)
	assert.True(t, s.OK)
	assert.Contains(t, s.Detail, "core memory ~0/500 tokens")
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		prov   stubProvider
		ok     bool
		detail string
	}{
		{"listed", stubProvider{models: []string{"llama", "qwen"}}, true, `lmstudio reachable, model "qwen"`},
		{"empty list", stubProvider{}, true, "reachable"},
		{"missing", stubProvider{models: []string{"llama"}}, false, `model "qwen" not found; available: llama`},
		{"down", stubProvider{err: errors.New("dial tcp: connection refused")}, false, "is the server running?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CheckEndpoint(t.Context(), tt.prov)
			assert.Equal(t, tt.ok, s.OK)
			assert.Contains(t, s.Detail, tt.detail)
		})
	}
}

func TestRunReportsAll(t *testing.T) {
	statuses := Run(t.Context(), newVault(t), stubProvider{})
	require.Len(t, statuses, 3)
	assert.Equal(t, []string{"vault", "memory", "model"}, []string{statuses[0].Name, statuses[1].Name, statuses[2].Name})
}
