package observability

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`firmdesk_[a-z_]+`)

func loadAuthzRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "authz.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	for _, g := range file.Groups {
		if g.Name == "authz" {
			return g.Rules
		}
	}
	t.Fatal("authz alert group missing")
	return nil
}

// registeredNames seeds every vector once so Gather reports it.
func registeredNames(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.ObserveDecision("all", "denied")
	_ = m.Jobs().Track("audit:record").End(errors.New("boom"))
	m.Jobs().AddAuditEvent("auth.login")
	m.Jobs().AddPruned(1)

	families, err := m.registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestAuthzAlertRules(t *testing.T) {
	rules := loadAuthzRules(t)
	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-authz.md"))
	require.NoError(t, err)
	names := registeredNames(t)

	expected := map[string]string{
		"AuthzDenialSpike":   "warning",
		"AuthzMissingScope":  "critical",
		"AuditQueueFailures": "warning",
	}
	require.Len(t, rules, len(expected))

	for _, rule := range rules {
		t.Run(rule.Alert, func(t *testing.T) {
			severity, ok := expected[rule.Alert]
			require.True(t, ok, "unexpected rule")
			assert.Equal(t, severity, rule.Labels["severity"])
			assert.NotEmpty(t, rule.For)
			assert.NotEmpty(t, rule.Annotations["summary"])
			assert.NotEmpty(t, rule.Annotations["description"])

			ref := rule.Annotations["runbook"]
			path, anchor, found := strings.Cut(ref, "#")
			require.True(t, found, "runbook %q needs an anchor", ref)
			assert.Equal(t, "docs/runbook-authz.md", path)
			assert.Contains(t, string(runbook), "## "+anchor)

			used := metricName.FindAllString(rule.Expr, -1)
			require.NotEmpty(t, used, "expression must reference a firmdesk metric")
			for _, name := range used {
				assert.True(t, names[name], "metric %s is not exported", name)
			}
		})
	}
}
