package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

// mockSecretsManagerClient implements SecretsManagerAPI for testing
type mockSecretsManagerClient struct {
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	describeSecretFunc func(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

func (m *mockSecretsManagerClient) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	if m.getSecretValueFunc != nil {
		return m.getSecretValueFunc(ctx, params, optFns...)
	}
	return nil, errors.New("GetSecretValue not implemented")
}

func (m *mockSecretsManagerClient) DescribeSecret(
	ctx context.Context,
	params *secretsmanager.DescribeSecretInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.DescribeSecretOutput, error) {
	if m.describeSecretFunc != nil {
		return m.describeSecretFunc(ctx, params, optFns...)
	}
	return nil, errors.New("DescribeSecret not implemented")
}

func newTestProvider(t *testing.T, client SecretsManagerAPI) *Provider {
	t.Helper()
	p, err := New(context.Background(), WithClient(client))
	require.NoError(t, err)
	return p
}

func TestProviderResolve(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		ref         secrets.SecretRef
		output      *secretsmanager.GetSecretValueOutput
		err         error
		wantValue   string
		wantStage   string
		wantID      string
		wantErrIs   error
		wantProvErr bool
	}{
		{
			name: "string secret",
			ref:  secrets.SecretRef{Path: "ci/dockerhub-creds"},
			output: &secretsmanager.GetSecretValueOutput{
				SecretString: aws.String(`{"username":"u","password":"p"}`),
				VersionId:    aws.String("abc"),
				CreatedDate:  &created,
			},
			wantValue: `{"username":"u","password":"p"}`,
		},
		{
			name: "binary secret by stage",
			ref:  secrets.SecretRef{Path: "ci/key", Version: "AWSPREVIOUS"},
			output: &secretsmanager.GetSecretValueOutput{
				SecretBinary: []byte{0x01, 0x02},
			},
			wantValue: "\x01\x02",
			wantStage: "AWSPREVIOUS",
		},
		{
			name:      "version id",
			ref:       secrets.SecretRef{Path: "ci/key", Version: "0f1e"},
			output:    &secretsmanager.GetSecretValueOutput{SecretString: aws.String("x")},
			wantValue: "x",
			wantID:    "0f1e",
		},
		{
			name:      "empty path",
			ref:       secrets.SecretRef{},
			wantErrIs: secrets.ErrInvalidRef,
		},
		{
			name:      "not found",
			ref:       secrets.SecretRef{Path: "missing"},
			err:       &types.ResourceNotFoundException{Message: aws.String("nope")},
			wantErrIs: secrets.ErrSecretNotFound,
		},
		{
			name:      "access denied",
			ref:       secrets.SecretRef{Path: "locked"},
			err:       &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not allowed"},
			wantErrIs: secrets.ErrAccessDenied,
		},
		{
			name:        "other failure",
			ref:         secrets.SecretRef{Path: "flaky"},
			err:         errors.New("connection reset"),
			wantProvErr: true,
		},
		{
			name:      "no value",
			ref:       secrets.SecretRef{Path: "empty"},
			output:    &secretsmanager.GetSecretValueOutput{},
			wantErrIs: secrets.ErrProviderError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *secretsmanager.GetSecretValueInput
			client := &mockSecretsManagerClient{
				getSecretValueFunc: func(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
					got = params
					return tt.output, tt.err
				},
			}

			secret, err := newTestProvider(t, client).Resolve(context.Background(), tt.ref)
			switch {
			case tt.wantErrIs != nil:
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			case tt.wantProvErr:
				assert.True(t, secrets.IsProviderError(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, string(secret.Value))
			assert.Equal(t, tt.ref.Path, aws.ToString(got.SecretId))
			assert.Equal(t, tt.wantStage, aws.ToString(got.VersionStage))
			assert.Equal(t, tt.wantID, aws.ToString(got.VersionId))
		})
	}
}

func TestProviderExists(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "exists", want: true},
		{name: "missing", err: &types.ResourceNotFoundException{}},
		{name: "failure", err: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSecretsManagerClient{
				describeSecretFunc: func(context.Context, *secretsmanager.DescribeSecretInput, ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &secretsmanager.DescribeSecretOutput{Name: aws.String("s")}, nil
				},
			}

			ok, err := newTestProvider(t, client).Exists(context.Background(), secrets.SecretRef{Path: "s"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestProviderWithManager(t *testing.T) {
	client := &mockSecretsManagerClient{
		getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("jenkins:s3cret")}, nil
		},
	}

	manager := secrets.NewManager(&secrets.Config{DefaultProvider: "aws"})
	require.NoError(t, manager.RegisterProvider("aws", newTestProvider(t, client)))

	creds, err := manager.Credentials(context.Background(), secrets.SecretRef{Path: "ci/dockerhub-creds"})
	require.NoError(t, err)
	assert.Equal(t, secrets.Credentials{Username: "jenkins", Password: "s3cret"}, creds)
}
