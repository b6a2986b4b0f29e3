// Package secrets resolves named secret identifiers to references the
// cluster binds at pod-start time. Secret values never pass through this
// package; only names and keys do.
package secrets

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/gsingh-io/pgbackup/pkg/config"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrNotFound marks a named secret or key that does not exist.
	ErrNotFound = errors.New("credential not found")

	// ErrUnavailable marks a failure reaching the credential backend.
	// Retryable by the caller with backoff.
	ErrUnavailable = errors.New("credential backend unavailable")
)

// Reference is an opaque handle to one key of a cluster secret. It is safe
// to log and to embed in job manifests.
type Reference struct {
	// SecretName is the Kubernetes Secret object name.
	SecretName string `json:"secretName"`

	// Key inside the secret data.
	Key string `json:"key"`
}

// Credentials holds the resolved references for one backup run.
type Credentials struct {
	// Password is the PostgreSQL password reference.
	Password Reference `json:"password"`

	// AccessKey is the S3 access key ID reference.
	AccessKey Reference `json:"accessKey"`

	// SecretKey is the S3 secret access key reference.
	SecretKey Reference `json:"secretKey"`
}

// Resolver turns named secret identifiers into cluster-bindable references.
type Resolver interface {
	Resolve(ctx context.Context, namespace string, cfg config.SecretsConfig) (*Credentials, error)
}

// KubeResolver verifies that each named Secret exists in the job namespace
// and carries the expected key, retrying transient API failures with
// exponential backoff.
type KubeResolver struct {
	client kubernetes.Interface
}

// NewKubeResolver returns a resolver backed by the given clientset.
func NewKubeResolver(client kubernetes.Interface) *KubeResolver {
	return &KubeResolver{client: client}
}

func (r *KubeResolver) Resolve(ctx context.Context, namespace string, cfg config.SecretsConfig) (*Credentials, error) {
	creds := &Credentials{}
	for _, item := range []struct {
		ref  config.SecretRef
		dest *Reference
	}{
		{cfg.Password, &creds.Password},
		{cfg.AccessKey, &creds.AccessKey},
		{cfg.SecretKey, &creds.SecretKey},
	} {
		resolved, err := r.resolve(ctx, namespace, item.ref)
		if err != nil {
			return nil, err
		}
		*item.dest = resolved
	}
	return creds, nil
}

func (r *KubeResolver) resolve(ctx context.Context, namespace string, ref config.SecretRef) (Reference, error) {
	var keys []string
	err := retry.OnError(retry.DefaultBackoff, retriable, func() error {
		secret, err := r.client.CoreV1().Secrets(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		keys = keys[:0]
		for k := range secret.Data {
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return Reference{}, fmt.Errorf("secret %s.%s: %w", ref.Name, namespace, ErrNotFound)
		}
		return Reference{}, fmt.Errorf("secret %s.%s: %w: %v", ref.Name, namespace, ErrUnavailable, err)
	}

	for _, k := range keys {
		if k == ref.Key {
			return Reference{SecretName: ref.Name, Key: ref.Key}, nil
		}
	}
	return Reference{}, fmt.Errorf("secret %s.%s has no key %q: %w", ref.Name, namespace, ref.Key, ErrNotFound)
}

func retriable(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err)
}
