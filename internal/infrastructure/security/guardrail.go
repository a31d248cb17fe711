// Package security evaluates proposed commands against regex guardrail rules.
package security

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// Guardrail implements the SecurityService port.
type Guardrail struct {
	patterns   []compiledPattern
	namespaces []protectedNamespace
}

type compiledPattern struct {
	re   *regexp.Regexp
	rule DangerPattern
}

type protectedNamespace struct {
	re   *regexp.Regexp
	name string
}

// DangerPattern describes a regex-based guardrail rule.
type DangerPattern struct {
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`
	Message string `yaml:"message"`
	Action  string `yaml:"action"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Rules struct {
		DangerPatterns      []DangerPattern `yaml:"danger_patterns"`
		ProtectedNamespaces []string        `yaml:"protected_namespaces"`
	} `yaml:"rules"`
}

// mutatingVerbs are kubectl/helm verbs that change cluster state.
var mutatingVerbs = `(delete|apply|create|replace|patch|edit|scale|drain|cordon|taint|label|annotate|rollout|set|uninstall|upgrade|install)`

// NewGuardrail loads guardrail rules from disk, falling back to built-in rules
// when the file is missing.
func NewGuardrail(path string) (*Guardrail, error) {
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}
	return Compile(rules)
}

// Compile builds a Guardrail from parsed rules.
func Compile(rules RulesFile) (*Guardrail, error) {
	g := &Guardrail{}
	for _, pattern := range rules.Rules.DangerPatterns {
		re, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", pattern.Pattern, err)
		}
		g.patterns = append(g.patterns, compiledPattern{re: re, rule: pattern})
	}
	for _, ns := range rules.Rules.ProtectedNamespaces {
		expr := fmt.Sprintf(`\b%s\b.*(-n\s*|--namespace[=\s]+)%s\b`, mutatingVerbs, regexp.QuoteMeta(ns))
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile namespace %q: %w", ns, err)
		}
		g.namespaces = append(g.namespaces, protectedNamespace{re: re, name: ns})
	}
	return g, nil
}

// Evaluate implements ports.SecurityService.
func (g *Guardrail) Evaluate(command string) (domain.RiskAssessment, error) {
	if g == nil {
		return domain.RiskAssessment{}, errors.New("guardrail nil")
	}
	assessment := domain.RiskAssessment{
		Level:  domain.RiskSafe,
		Action: domain.ActionAllow,
	}
	highest := domain.RiskSafe
	command = stripConnectionFlags(command)
	for _, pattern := range g.patterns {
		if !pattern.re.MatchString(command) {
			continue
		}
		ruleLevel := parseRiskLevel(pattern.rule.Level)
		action := parseAction(pattern.rule.Action, ruleLevel)
		if moreSevere(ruleLevel, highest) || (ruleLevel == highest && action == domain.ActionBlock) {
			highest = ruleLevel
			assessment.Level = ruleLevel
			assessment.Action = action
		}
		assessment.Reasons = append(assessment.Reasons, pattern.rule.Message)
		assessment.MatchedRules = append(assessment.MatchedRules, pattern.rule.Pattern)
	}
	for _, ns := range g.namespaces {
		if !ns.re.MatchString(command) {
			continue
		}
		if moreSevere(domain.RiskHigh, highest) {
			highest = domain.RiskHigh
			assessment.Level = domain.RiskHigh
			assessment.Action = domain.ActionExplicitConfirm
		}
		assessment.Reasons = append(assessment.Reasons, fmt.Sprintf("Changes protected namespace %s", ns.name))
		assessment.ProtectedNamespaces = append(assessment.ProtectedNamespaces, ns.name)
	}
	return assessment, nil
}

// connectionFlags matches kubectl/helm global flags placed before the verb.
var connectionFlags = regexp.MustCompile(`\b(kubectl|helm)((?:\s+--(?:context|kube-context|kubeconfig|cluster|user)(?:=|\s+)\S+)+)`)

// stripConnectionFlags drops connection flags between the CLI name and its verb
// so rules anchored on "kubectl <verb>" still match.
func stripConnectionFlags(command string) string {
	return connectionFlags.ReplaceAllString(command, "$1")
}

func loadRules(path string) (RulesFile, error) {
	var rules RulesFile
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && path != "" {
			return RulesFile{}, fmt.Errorf("read guardrail rules: %w", err)
		}
		return DefaultRules(), nil
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RulesFile{}, fmt.Errorf("parse guardrail rules: %w", err)
	}
	if len(rules.Rules.DangerPatterns) == 0 {
		rules.Rules.DangerPatterns = defaultPatterns()
	}
	return rules, nil
}

func parseRiskLevel(value string) domain.RiskLevel {
	switch strings.ToLower(value) {
	case "low":
		return domain.RiskLow
	case "medium":
		return domain.RiskMedium
	case "high":
		return domain.RiskHigh
	case "critical":
		return domain.RiskCritical
	default:
		return domain.RiskSafe
	}
}

func parseAction(value string, fallback domain.RiskLevel) domain.GuardrailAction {
	switch strings.ToLower(value) {
	case "simple_confirm":
		return domain.ActionSimpleConfirm
	case "confirm":
		return domain.ActionConfirm
	case "explicit_confirm":
		return domain.ActionExplicitConfirm
	case "block":
		return domain.ActionBlock
	default:
		if fallback == domain.RiskSafe {
			return domain.ActionAllow
		}
		return domain.ActionConfirm
	}
}

func moreSevere(next domain.RiskLevel, current domain.RiskLevel) bool {
	order := map[domain.RiskLevel]int{
		domain.RiskSafe:     0,
		domain.RiskLow:      1,
		domain.RiskMedium:   2,
		domain.RiskHigh:     3,
		domain.RiskCritical: 4,
	}
	return order[next] > order[current]
}

// DefaultRules are used when no rules file exists.
func DefaultRules() RulesFile {
	var rules RulesFile
	rules.Rules.DangerPatterns = defaultPatterns()
	rules.Rules.ProtectedNamespaces = []string{"kube-system", "kube-public"}
	return rules
}

func defaultPatterns() []DangerPattern {
	return []DangerPattern{
		{Pattern: `rm\s+-rf\s+/(\s|$)`, Level: "critical", Message: "Deleting root directory", Action: "block"},
		{Pattern: `mkfs\.`, Level: "critical", Message: "Formatting filesystem", Action: "block"},
		{Pattern: `:\(\)\s*\{\s*:\|:&\s*\};:`, Level: "critical", Message: "Fork bomb", Action: "block"},
		{Pattern: `kubectl\s+delete\s+(ns|namespace)s?\b`, Level: "critical", Message: "Deleting a namespace removes everything in it", Action: "explicit_confirm"},
		{Pattern: `kubectl\s+delete\b.*(--all\b|-A\b|--all-namespaces)`, Level: "critical", Message: "Bulk delete across resources", Action: "explicit_confirm"},
		{Pattern: `kubectl\s+delete\s+(node|nodes|no|crd|crds|customresourcedefinition)\b`, Level: "critical", Message: "Deleting cluster-scoped infrastructure", Action: "explicit_confirm"},
		{Pattern: `kubectl\s+drain\b`, Level: "high", Message: "Draining evicts every pod on the node", Action: "confirm"},
		{Pattern: `kubectl\s+delete\b`, Level: "high", Message: "Deleting cluster resources", Action: "confirm"},
		{Pattern: `kubectl\s+(apply|create|replace|patch|edit|set)\b`, Level: "medium", Message: "Modifying cluster resources", Action: "confirm"},
		{Pattern: `kubectl\s+scale\b.*--replicas[=\s]+0\b`, Level: "high", Message: "Scaling to zero stops the workload", Action: "confirm"},
		{Pattern: `kubectl\s+(scale|cordon|uncordon|taint|label|annotate|rollout\s+(restart|undo))\b`, Level: "medium", Message: "Changing workload or node state", Action: "simple_confirm"},
		{Pattern: `kubectl\s+exec\b`, Level: "medium", Message: "Running a command inside a container", Action: "simple_confirm"},
		{Pattern: `helm\s+(uninstall|delete|rollback)\b`, Level: "high", Message: "Removing or rolling back a release", Action: "confirm"},
		{Pattern: `helm\s+(install|upgrade)\b`, Level: "medium", Message: "Installing or upgrading a release", Action: "confirm"},
		{Pattern: `curl.*\|\s*(sudo\s+)?(ba)?sh`, Level: "high", Message: "Piping a remote script into a shell", Action: "confirm"},
	}
}

var _ ports.SecurityService = (*Guardrail)(nil)
