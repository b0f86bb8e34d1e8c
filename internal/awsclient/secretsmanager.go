package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/secrets"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager implements secrets.Store over AWS Secrets Manager.
type SecretsManager struct {
	api SecretsManagerAPI
}

// NewSecretsManager creates a secret store.
func NewSecretsManager(api SecretsManagerAPI) *SecretsManager {
	return &SecretsManager{api: api}
}

// GetSecret fetches and decodes the secret string for ref.
func (s *SecretsManager) GetSecret(ctx context.Context, ref string) (map[string]any, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref)})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%s: %w", ref, secrets.ErrNotFound)
		}
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	return secrets.ParseDocument(aws.ToString(out.SecretString))
}

var _ secrets.Store = (*SecretsManager)(nil)
