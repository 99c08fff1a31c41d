package environment

import "context"

// MultiProvider queries providers in order and returns the first hit.
type MultiProvider struct {
	providers []Provider
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{
		providers: providers,
	}
}

func (p *MultiProvider) Get(ctx context.Context, name string) (string, bool) {
	for _, provider := range p.providers {
		if value, ok := provider.Get(ctx, name); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

// NewDefaultProvider resolves secrets from saved configuration values
// first, then the process environment.
func NewDefaultProvider(configValues map[string]string) Provider {
	return NewMultiProvider(
		NewValuesProvider(configValues),
		NewOsEnvProvider(),
	)
}
