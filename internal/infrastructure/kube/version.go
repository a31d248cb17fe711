package kube

import (
	"context"
	"fmt"
	"time"

	utilversion "k8s.io/apimachinery/pkg/util/version"
	"k8s.io/client-go/kubernetes"

	"github.com/doeshing/kshai/internal/domain"
)

const (
	probeTimeout = 5 * time.Second
	// MinServerVersion is the oldest API server the suggested commands target.
	MinServerVersion = "v1.24.0"
)

// ServerVersion asks the API server of the selected context for its version.
func ServerVersion(ctx context.Context, cluster domain.ClusterSettings) (string, error) {
	cfg, err := RESTConfig(cluster)
	if err != nil {
		return "", err
	}
	cfg.Timeout = probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < cfg.Timeout {
			cfg.Timeout = remaining
		}
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("build clientset: %w", err)
	}
	info, err := client.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	if err := CheckSupported(info.GitVersion); err != nil {
		return info.GitVersion, err
	}
	return info.GitVersion, nil
}

// CheckSupported reports whether gitVersion is at least MinServerVersion.
func CheckSupported(gitVersion string) error {
	got, err := utilversion.ParseGeneric(gitVersion)
	if err != nil {
		return fmt.Errorf("parse server version %q: %w", gitVersion, err)
	}
	if got.LessThan(utilversion.MustParseGeneric(MinServerVersion)) {
		return fmt.Errorf("server %s is older than %s", gitVersion, MinServerVersion)
	}
	return nil
}
