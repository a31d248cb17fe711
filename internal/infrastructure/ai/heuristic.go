package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// heuristicProvider is the offline fallback used when no credentials are set.
// It answers with one fenced suggestion so the extraction path still applies.
type heuristicProvider struct {
	providerBase
	cli       string
	extractor ports.CommandExtractor
}

func (p *heuristicProvider) Stream(ctx context.Context, req ports.ProviderRequest) ports.EventStream {
	reply := heuristicReply(p.cli, lastUserText(req.History))
	driver := p.genericDriver(p.extractor)
	return newEventStream(ctx, func(ctx context.Context, l *ledger, yield func(domain.Event) bool) {
		driver.run(ctx, func(_ context.Context, emit func(string) bool) error {
			if !emit(reply) {
				return errConsumerStopped
			}
			return nil
		}, l, yield)
	})
}

func heuristicReply(cli, prompt string) string {
	command := guessCommand(cli, prompt)
	return fmt.Sprintf("No model credentials are configured, so this is an offline suggestion.\n\n```bash\n%s\n```\n", command)
}

func guessCommand(cli, prompt string) string {
	if cli == "" {
		cli = domain.DefaultClusterCLI
	}
	prompt = strings.ToLower(prompt)
	switch {
	case strings.Contains(prompt, "helm") || strings.Contains(prompt, "release"):
		return "helm list -A"
	case strings.Contains(prompt, "node"):
		return cli + " get nodes -o wide"
	case strings.Contains(prompt, "event"):
		return cli + " get events -A --sort-by=.lastTimestamp"
	case strings.Contains(prompt, "deploy"):
		return cli + " get deployments -A"
	case strings.Contains(prompt, "service") || strings.Contains(prompt, "svc"):
		return cli + " get services -A"
	case strings.Contains(prompt, "namespace"):
		return cli + " get namespaces"
	case strings.Contains(prompt, "log"):
		return cli + " get pods -A --field-selector=status.phase!=Running"
	case strings.Contains(prompt, "pod"):
		return cli + " get pods -A"
	default:
		return cli + " cluster-info"
	}
}
