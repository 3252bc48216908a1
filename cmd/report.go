package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entropic-void/voidsim/sim"
)

// writeReport saves the metrics as YAML.
func writeReport(path string, m *sim.Metrics) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
