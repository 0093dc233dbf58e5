// Package secrets resolves database credentials from the managed secret
// store when a secret name is configured.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the slice of the secrets manager the resolver uses.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// DatabaseCredentials is the JSON payload stored for the database user.
type DatabaseCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResolveDatabaseCredentials fetches and decodes the named secret.
func ResolveDatabaseCredentials(ctx context.Context, api SecretsAPI, secretName string) (*DatabaseCredentials, error) {
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %s: %w", secretName, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string payload", secretName)
	}

	var creds DatabaseCredentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", secretName, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("secret %s is missing username or password", secretName)
	}
	return &creds, nil
}
