package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const combatCatalog = `package rules

fact: {
	health: "value"
	mood:   "string"
	taunts: "value"
}

bucket: combat: {}

rule: taunt: {
	bucket:  "combat"
	payload: "hp {health}"
	when: [
		{fact: "health", gt: 50},
		{fact: "mood", eq: "angry"},
	]
	then: [
		{fact: "taunts", increment: 1},
		{fact: "mood", set: "calm"},
	]
}

rule: grumble: {
	bucket:  "combat"
	payload: "grr"
	when: [{fact: "mood", eq: "angry"}]
}

rule: rest: {
	when: [{fact: "health", lt: 20}]
	then: [{fact: "health", set: 100}]
}
`

const brokenCatalog = `package rules

fact: health: "value"

rule: r: when: [{fact: "mana", gt: 1}]
`

// writeCatalogDir writes src as rules.cue in a fresh directory.
func writeCatalogDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(src), 0o644))
	return dir
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
