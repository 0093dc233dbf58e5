package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	payload *string
	err     error
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.payload}, nil
}

func TestResolveDatabaseCredentials(t *testing.T) {
	api := &fakeSecrets{payload: aws.String(`{"username":"clipper","password":"hunter2"}`)}
	creds, err := ResolveDatabaseCredentials(context.Background(), api, "db-creds")
	require.NoError(t, err)
	assert.Equal(t, "clipper", creds.Username)
	assert.Equal(t, "hunter2", creds.Password)
}

func TestResolveDatabaseCredentialsErrors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeSecrets
	}{
		{"fetch error", &fakeSecrets{err: errors.New("denied")}},
		{"no payload", &fakeSecrets{}},
		{"bad json", &fakeSecrets{payload: aws.String("nope")}},
		{"missing fields", &fakeSecrets{payload: aws.String(`{"username":"x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveDatabaseCredentials(context.Background(), tt.api, "db-creds")
			require.Error(t, err)
		})
	}
}
