package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SECRET_ARN_AWS_SECRETSMANAGER_US_EAST_1_123_SECRET_HUBSPOT",
		EnvName("arn:aws:secretsmanager:us-east-1:123:secret:hubspot"))
}

func TestEnvStore(t *testing.T) {
	t.Setenv(EnvName("hubspot"), `{"token":"abc"}`)
	t.Setenv(EnvName("rds"), "plain-password")

	s := NewEnvStore()
	doc, err := s.GetSecret(context.Background(), "hubspot")
	require.NoError(t, err)
	assert.Equal(t, "abc", doc["token"])

	doc, err = s.GetSecret(context.Background(), "rds")
	require.NoError(t, err)
	assert.Equal(t, "plain-password", doc["value"])

	_, err = s.GetSecret(context.Background(), "bigquery")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDocument(t *testing.T) {
	_, err := ParseDocument("  ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ParseDocument("{}")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ParseDocument("{not json")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type brokenStore struct{}

func (brokenStore) GetSecret(ctx context.Context, ref string) (map[string]any, error) {
	return nil, errors.New("throttled")
}

func TestResolve(t *testing.T) {
	store := StaticStore{"arn:hubspot": {"token": "x"}}
	refs := []Ref{{Name: "hubspot", Ref: "arn:hubspot"}, {Name: "rds", Ref: "arn:rds"}}

	found, missing, err := Resolve(context.Background(), store, refs)
	require.NoError(t, err)
	assert.Contains(t, found, "hubspot")
	assert.Equal(t, []string{"rds"}, missing)

	_, _, err = Resolve(context.Background(), brokenStore{}, refs)
	assert.Error(t, err)
}
