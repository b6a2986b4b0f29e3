package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/gsingh-io/pgbackup/pkg/config"
)

func secret(name, key string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "backups"},
		Data:       map[string][]byte{key: []byte("s3cr3t")},
	}
}

func secretsConfig() config.SecretsConfig {
	return config.SecretsConfig{
		Password:  config.SecretRef{Name: "pg-password", Key: "value"},
		AccessKey: config.SecretRef{Name: "aws-access-key", Key: "value"},
		SecretKey: config.SecretRef{Name: "aws-secret-key", Key: "value"},
	}
}

func TestResolve(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("pg-password", "value"),
		secret("aws-access-key", "value"),
		secret("aws-secret-key", "value"),
	)
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.NoError(t, err)

	assert.Equal(t, Reference{SecretName: "pg-password", Key: "value"}, creds.Password)
	assert.Equal(t, Reference{SecretName: "aws-access-key", Key: "value"}, creds.AccessKey)
	assert.Equal(t, Reference{SecretName: "aws-secret-key", Key: "value"}, creds.SecretKey)
}

func TestResolveSecretMissing(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("pg-password", "value"),
		secret("aws-access-key", "value"),
	)
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "aws-secret-key")
	assert.Nil(t, creds)
}

func TestResolveKeyMissing(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("pg-password", "password"),
		secret("aws-access-key", "value"),
		secret("aws-secret-key", "value"),
	)
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), `no key "value"`)
	assert.Nil(t, creds)
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("pg-password", "value"),
		secret("aws-access-key", "value"),
		secret("aws-secret-key", "value"),
	)
	failures := 2
	clientset.PrependReactor("get", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if failures > 0 {
			failures--
			return true, nil, apierrors.NewServiceUnavailable("apiserver overloaded")
		}
		return false, nil, nil
	})
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.NoError(t, err)
	assert.Equal(t, "pg-password", creds.Password.SecretName)
}

func TestResolveBackendUnavailable(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("get", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("apiserver overloaded")
	})
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Nil(t, creds)
}

func TestReferenceCarriesNoValue(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		secret("pg-password", "value"),
		secret("aws-access-key", "value"),
		secret("aws-secret-key", "value"),
	)
	resolver := NewKubeResolver(clientset)

	creds, err := resolver.Resolve(context.Background(), "backups", secretsConfig())
	require.NoError(t, err)

	// References are names only; the secret bytes never leave the cluster.
	assert.NotContains(t, creds.Password.SecretName, "s3cr3t")
	assert.NotContains(t, creds.Password.Key, "s3cr3t")
}
