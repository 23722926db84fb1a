package llm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm/configbuilder"
	llmmock "github.com/R2i2Labs/fin-agent-ui/internal/llm/mock"
)

func TestRegistryResolve(t *testing.T) {
	reg := llm.NewRegistry()
	mockProvider := &llmmock.Provider{NameValue: "mock"}
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("default", llm.ModelRoute{
		Provider:    "mock",
		Model:       "dummy",
		Temperature: 0.2,
	}, true)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, mockProvider, p)
	require.Equal(t, "dummy", route.Model)
}

func TestRegistryResolveUnknownModel(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", &llmmock.Provider{})

	_, _, err := reg.Resolve("missing")
	require.Error(t, err)
}

func TestRegistryResolveUnknownProvider(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterModel("orphan", llm.ModelRoute{Provider: "nowhere", Model: "x"}, true)

	_, _, err := reg.Resolve("orphan")
	require.Error(t, err)
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", BaseURL: "http://example.com"},
			"local":  {Type: "ollama"},
		},
		Models: map[string]config.ModelConfig{
			"main":  {Provider: "openai", Model: "gpt-4.1-mini", Default: true},
			"coder": {Provider: "local", Model: "qwen2.5-coder"},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, _, err := reg.Resolve("main")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())

	p, route, err := reg.Resolve("coder")
	require.NoError(t, err)
	require.Equal(t, "local", p.Name())
	require.Equal(t, "qwen2.5-coder", route.Model)
}

func TestBuildRegistryRejectsUnknownProviderType(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"weird": {Type: "telepathy"},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "weird", Model: "x", Default: true},
		},
	}

	_, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.Error(t, err)
}
