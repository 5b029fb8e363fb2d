package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by ParamStore.
// *ssm.Client satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamStore resolves SecureString parameters and caches them for the process lifetime.
type ParamStore struct {
	api ssmAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewParamStore creates a ParamStore over the given SSM API.
func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &ParamStore{api: api, cache: make(map[string]string)}, nil
}

// GetParameter returns the decrypted value of name.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}

	p.mu.Lock()
	if v, ok := p.cache[name]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q missing value", name)
	}

	p.mu.Lock()
	p.cache[name] = *out.Parameter.Value
	p.mu.Unlock()
	return *out.Parameter.Value, nil
}
