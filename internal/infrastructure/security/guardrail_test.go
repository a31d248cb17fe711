package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/doeshing/kshai/internal/domain"
)

func TestGuardrailBlocksCriticalCommands(t *testing.T) {
	guardrail, err := NewGuardrail("")
	if err != nil {
		t.Fatalf("NewGuardrail error: %v", err)
	}

	result, err := guardrail.Evaluate("rm -rf /")
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	if result.Action != domain.ActionBlock || result.Level != domain.RiskCritical {
		t.Fatalf("expected critical block, got %+v", result)
	}
	if !result.Blocks() {
		t.Fatal("expected Blocks() to be true")
	}
}

func TestGuardrailAllowsReadOnlyCommands(t *testing.T) {
	guardrail, err := NewGuardrail("")
	if err != nil {
		t.Fatalf("NewGuardrail error: %v", err)
	}

	for _, cmd := range []string{"kubectl get pods -A", "kubectl describe node worker-1", "helm list -A", "kubectl logs deploy/api -n kube-system"} {
		result, err := guardrail.Evaluate(cmd)
		if err != nil {
			t.Fatalf("Evaluate error: %v", err)
		}
		if result.Level != domain.RiskSafe || result.Flagged() {
			t.Fatalf("expected safe for %q, got %+v", cmd, result)
		}
	}
}

func TestGuardrailKubectlRules(t *testing.T) {
	guardrail, err := NewGuardrail("")
	if err != nil {
		t.Fatalf("NewGuardrail error: %v", err)
	}

	tests := []struct {
		command string
		level   domain.RiskLevel
		action  domain.GuardrailAction
	}{
		{"kubectl delete pod api-0", domain.RiskHigh, domain.ActionConfirm},
		{"kubectl delete namespace staging", domain.RiskCritical, domain.ActionExplicitConfirm},
		{"kubectl delete pods --all -n dev", domain.RiskCritical, domain.ActionExplicitConfirm},
		{"kubectl apply -f deploy.yaml", domain.RiskMedium, domain.ActionConfirm},
		{"kubectl scale deploy/api --replicas=0", domain.RiskHigh, domain.ActionConfirm},
		{"kubectl rollout restart deploy/api", domain.RiskMedium, domain.ActionSimpleConfirm},
		{"helm uninstall redis", domain.RiskHigh, domain.ActionConfirm},
		{"kubectl --context prod delete namespace payments", domain.RiskCritical, domain.ActionExplicitConfirm},
		{"kubectl --kubeconfig=/tmp/kc --context prod drain node-1", domain.RiskHigh, domain.ActionConfirm},
		{"helm --kube-context prod uninstall redis", domain.RiskHigh, domain.ActionConfirm},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			result, err := guardrail.Evaluate(tt.command)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if result.Level != tt.level || result.Action != tt.action {
				t.Fatalf("got %s/%s, want %s/%s", result.Level, result.Action, tt.level, tt.action)
			}
		})
	}
}

func TestGuardrailProtectedNamespace(t *testing.T) {
	guardrail, err := NewGuardrail("")
	if err != nil {
		t.Fatalf("NewGuardrail error: %v", err)
	}
	result, err := guardrail.Evaluate("kubectl rollout restart deploy/coredns -n kube-system")
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if result.Level != domain.RiskHigh || result.Action != domain.ActionExplicitConfirm {
		t.Fatalf("expected protected namespace escalation, got %+v", result)
	}
	if len(result.ProtectedNamespaces) != 1 || result.ProtectedNamespaces[0] != "kube-system" {
		t.Fatalf("unexpected namespaces %v", result.ProtectedNamespaces)
	}
}

func TestGuardrailLoadsRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardrail.yaml")
	content := `rules:
  danger_patterns:
    - pattern: 'kubectl\s+cordon'
      level: critical
      message: "No cordoning in prod"
      action: block
  protected_namespaces: []
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	guardrail, err := NewGuardrail(path)
	if err != nil {
		t.Fatalf("NewGuardrail error: %v", err)
	}
	result, err := guardrail.Evaluate("kubectl cordon node-1")
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !result.Blocks() {
		t.Fatalf("expected block, got %+v", result)
	}
	result, _ = guardrail.Evaluate("kubectl delete pod x")
	if result.Flagged() {
		t.Fatalf("custom rules should replace defaults, got %+v", result)
	}
}

func TestGuardrailInvalidPattern(t *testing.T) {
	var rules RulesFile
	rules.Rules.DangerPatterns = []DangerPattern{{Pattern: "(", Level: "high"}}
	if _, err := Compile(rules); err == nil {
		t.Fatal("expected compile error")
	}
}
