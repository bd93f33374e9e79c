package cmd

import (
	"edgeml/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesTemplate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "edgeml", "config.yaml")
	c := &cobra.Command{Use: "init", RunE: config.InitCfg}
	InitCmdFlags(c)
	c.SetArgs([]string{"--output", out, "--yes"})
	if err := c.Execute(); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var opt config.EdgeMLOpt
	if err := yaml.Unmarshal(buf, &opt); err != nil {
		t.Fatal(err)
	}
	if opt.GRPC.Port != config.DefaultGRPCPort || opt.Acquisition.PeriodMs != config.DefaultPeriodMs {
		t.Errorf("template = %+v", opt)
	}
}

func TestRootCommands(t *testing.T) {
	root := getRootCmd()
	for _, name := range []string{"serve", "init", "probe"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("command %s not registered: %v", name, err)
		}
	}
	if ServeCmd.Flags().Lookup("sim") == nil {
		t.Error("serve has no --sim flag")
	}
}
