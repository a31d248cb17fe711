// Package kube reads the operator's kubeconfig selection.
package kube

import (
	"context"
	"fmt"
	"os/exec"
	"sort"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// Collector implements ports.ClusterCollector with client-go's kubeconfig loader.
type Collector struct {
	toolsToCheck []string
	lookPath     func(string) (string, error)
}

// NewCollector builds a collector.
func NewCollector() *Collector {
	return &Collector{
		toolsToCheck: []string{"kubectl", "helm", "kustomize", "jq"},
		lookPath:     exec.LookPath,
	}
}

// Collect resolves context, cluster and namespace the same way kubectl would,
// honouring explicit overrides from the config file.
func (c *Collector) Collect(_ context.Context, cfg domain.Config) (domain.ClusterContext, error) {
	out := domain.ClusterContext{
		CLI:        cfg.GetClusterCLI(),
		Kubeconfig: cfg.Cluster.Kubeconfig,
		Tools:      c.detectTools(),
	}

	clientConfig := clientConfigFor(cfg.Cluster)
	raw, err := clientConfig.RawConfig()
	if err != nil {
		return out, fmt.Errorf("load kubeconfig: %w", err)
	}

	out.Context = raw.CurrentContext
	if cfg.Cluster.Context != "" {
		out.Context = cfg.Cluster.Context
	}
	for name := range raw.Contexts {
		if name != out.Context {
			out.Contexts = append(out.Contexts, name)
		}
	}
	sort.Strings(out.Contexts)

	if kctx, ok := raw.Contexts[out.Context]; ok {
		out.Cluster = kctx.Cluster
		if cluster, ok := raw.Clusters[kctx.Cluster]; ok {
			out.Server = cluster.Server
		}
	}

	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		return out, fmt.Errorf("resolve namespace: %w", err)
	}
	out.Namespace = namespace
	return out, nil
}

// RESTConfig builds a client config for direct API checks.
func RESTConfig(cluster domain.ClusterSettings) (*rest.Config, error) {
	cfg, err := clientConfigFor(cluster).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}
	return cfg, nil
}

func clientConfigFor(cluster domain.ClusterSettings) clientcmd.ClientConfig {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cluster.Kubeconfig != "" {
		rules.ExplicitPath = cluster.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cluster.Context}
	if cluster.Namespace != "" {
		overrides.Context.Namespace = cluster.Namespace
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
}

func (c *Collector) detectTools() []string {
	var available []string
	for _, tool := range c.toolsToCheck {
		if _, err := c.lookPath(tool); err == nil {
			available = append(available, tool)
		}
	}
	sort.Strings(available)
	return available
}

var _ ports.ClusterCollector = (*Collector)(nil)
