package environment

import (
	"context"
	"os"
)

// OsEnvProvider resolves names from the process environment.
type OsEnvProvider struct{}

func NewOsEnvProvider() *OsEnvProvider {
	return &OsEnvProvider{}
}

func (p *OsEnvProvider) Get(_ context.Context, name string) (string, bool) {
	return os.LookupEnv(name)
}

// ValuesProvider resolves names from a fixed map, used for API keys stored
// in saved provider configurations.
type ValuesProvider struct {
	values map[string]string
}

func NewValuesProvider(values map[string]string) *ValuesProvider {
	return &ValuesProvider{values: values}
}

func (p *ValuesProvider) Get(_ context.Context, name string) (string, bool) {
	value, ok := p.values[name]
	return value, ok
}
