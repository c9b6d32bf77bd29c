package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// GraphSecret is the JSON document stored in AWS Secrets Manager.
type GraphSecret struct {
	AccessToken string `json:"access_token"`
	PixelID     string `json:"pixel_id,omitempty"`
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerClient wraps AWS Secrets Manager operations.
type SecretsManagerClient struct {
	client SecretsAPI
}

// NewSecretsManagerClient creates a Secrets Manager client from the default
// credential chain (the Lambda execution role when deployed).
func NewSecretsManagerClient(ctx context.Context) (*SecretsManagerClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewSecretsManagerClientWithAPI(secretsmanager.NewFromConfig(cfg)), nil
}

// NewSecretsManagerClientWithAPI wraps an existing Secrets Manager API.
func NewSecretsManagerClientWithAPI(api SecretsAPI) *SecretsManagerClient {
	return &SecretsManagerClient{client: api}
}

// GetGraphSecret fetches and parses Conversions API credentials.
func (c *SecretsManagerClient) GetGraphSecret(ctx context.Context, secretName string) (*GraphSecret, error) {
	if secretName == "" {
		return nil, fmt.Errorf("secret name is empty")
	}

	output, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch secret %q from secrets manager: %w", secretName, err)
	}

	if output.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string value (binary secrets not supported)", secretName)
	}

	var secret GraphSecret
	if err := json.Unmarshal([]byte(*output.SecretString), &secret); err != nil {
		return nil, fmt.Errorf("parse secret %q as JSON: %w", secretName, err)
	}

	if secret.AccessToken == "" {
		return nil, fmt.Errorf("secret %q missing required field: access_token", secretName)
	}

	return &secret, nil
}

// ApplySecret fills credentials not already set from the environment.
func (g *GraphConfig) ApplySecret(s *GraphSecret) {
	if s == nil {
		return
	}
	if g.AccessToken == "" {
		g.AccessToken = s.AccessToken
	}
	if g.PixelID == "" {
		g.PixelID = s.PixelID
	}
}
