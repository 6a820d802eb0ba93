package outcome

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelerApply(t *testing.T) {
	l, err := NewLabeler(LabelRules{
		Final: `event.stage == "committed"`,
		Proxy: `int(event.messages_exchanged) >= 3`,
	})
	require.NoError(t, err)

	final, proxy := l.Apply(map[string]any{
		"stage":              "committed",
		"messages_exchanged": 1,
	})
	require.NotNil(t, final)
	require.True(t, *final)
	require.NotNil(t, proxy)
	require.False(t, *proxy)
}

func TestLabelerMissingAttrLeavesUnresolved(t *testing.T) {
	l, err := NewLabeler(LabelRules{Final: `event.stage == "committed"`})
	require.NoError(t, err)

	// stage absent: the rule errors at eval time, label stays unresolved.
	final, proxy := l.Apply(map[string]any{"other": 1})
	require.Nil(t, final)
	require.Nil(t, proxy)
}

func TestLabelerNonBooleanRuleUnresolved(t *testing.T) {
	l, err := NewLabeler(LabelRules{Final: `event.stage`})
	require.NoError(t, err)

	final, _ := l.Apply(map[string]any{"stage": "committed"})
	require.Nil(t, final)
}

func TestLabelerEmptyRules(t *testing.T) {
	l, err := NewLabeler(LabelRules{})
	require.NoError(t, err)

	final, proxy := l.Apply(map[string]any{"stage": "committed"})
	require.Nil(t, final)
	require.Nil(t, proxy)
}

func TestNewLabelerBadExpression(t *testing.T) {
	_, err := NewLabeler(LabelRules{Final: `event.stage ==`})
	require.Error(t, err)
}

func TestLoadLabeler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"final: event.stage == \"committed\"\nproxy: event.responded == true\n"), 0644))

	l, err := LoadLabeler(path)
	require.NoError(t, err)

	final, proxy := l.Apply(map[string]any{"stage": "dropped", "responded": true})
	require.NotNil(t, final)
	require.False(t, *final)
	require.NotNil(t, proxy)
	require.True(t, *proxy)
}

func TestLoadLabelerMissingFile(t *testing.T) {
	_, err := LoadLabeler(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
