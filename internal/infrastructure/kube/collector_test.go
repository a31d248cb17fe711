package kube

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/kshai/internal/domain"
)

const testKubeconfig = `apiVersion: v1
kind: Config
current-context: staging
clusters:
- name: staging-cluster
  cluster:
    server: https://staging.example.com:6443
- name: prod-cluster
  cluster:
    server: https://prod.example.com:6443
contexts:
- name: staging
  context:
    cluster: staging-cluster
    user: ops
    namespace: payments
- name: prod
  context:
    cluster: prod-cluster
    user: ops
users:
- name: ops
  user:
    token: fake
`

func writeKubeconfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	return path
}

func newTestCollector() *Collector {
	c := NewCollector()
	c.lookPath = func(name string) (string, error) {
		if name == "kubectl" {
			return "/usr/bin/kubectl", nil
		}
		return "", errors.New("not found")
	}
	return c
}

func TestCollector_CurrentContext(t *testing.T) {
	cfg := domain.Config{Cluster: domain.ClusterSettings{Kubeconfig: writeKubeconfig(t)}}

	got, err := newTestCollector().Collect(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "staging", got.Context)
	assert.Equal(t, "staging-cluster", got.Cluster)
	assert.Equal(t, "payments", got.Namespace)
	assert.Equal(t, "https://staging.example.com:6443", got.Server)
	assert.Equal(t, []string{"prod"}, got.Contexts)
	assert.Equal(t, []string{"kubectl"}, got.Tools)
	assert.Equal(t, "kubectl", got.CLI)
}

func TestCollector_Overrides(t *testing.T) {
	cfg := domain.Config{Cluster: domain.ClusterSettings{
		Kubeconfig: writeKubeconfig(t),
		Context:    "prod",
		Namespace:  "checkout",
	}}

	got, err := newTestCollector().Collect(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Context)
	assert.Equal(t, "prod-cluster", got.Cluster)
	assert.Equal(t, "checkout", got.Namespace)
}

func TestCollector_DefaultNamespace(t *testing.T) {
	cfg := domain.Config{Cluster: domain.ClusterSettings{Kubeconfig: writeKubeconfig(t), Context: "prod"}}

	got, err := newTestCollector().Collect(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "default", got.Namespace)
}

func TestRESTConfig(t *testing.T) {
	cfg, err := RESTConfig(domain.ClusterSettings{Kubeconfig: writeKubeconfig(t), Context: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "https://prod.example.com:6443", cfg.Host)
}

func TestCheckSupported(t *testing.T) {
	assert.NoError(t, CheckSupported("v1.30.3"))
	assert.NoError(t, CheckSupported("v1.28.5-eks-5e0fdde"))
	assert.ErrorContains(t, CheckSupported("v1.21.0"), "older than")
	assert.Error(t, CheckSupported("not-a-version"))
}
