package config

import (
	"github.com/spf13/cobra"
	"os"
	"path/filepath"
	"testing"
)

func newCmd(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Int64P("port", "p", DefaultAPIPort, "")
	cmd.Flags().StringP("interface", "i", DefaultAPIInterface, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("sim", false, "")
	if configPath != "" {
		if err := cmd.Flags().Set("config", configPath); err != nil {
			t.Fatal(err)
		}
	}
	return cmd
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseDefaults(t *testing.T) {
	desc := NewEdgeMLDesc()
	if err := desc.Parse(newCmd(t, writeConfig(t, "debug: false\n"))); err != nil {
		t.Fatal(err)
	}
	want := NewEdgeMLOpt()
	if desc.Opt.GRPC != want.GRPC || desc.Opt.API != want.API {
		t.Errorf("endpoints = %+v %+v", desc.Opt.GRPC, desc.Opt.API)
	}
	if desc.Opt.Acquisition != want.Acquisition {
		t.Errorf("acquisition = %+v", desc.Opt.Acquisition)
	}
	if desc.Opt.Devices != want.Devices {
		t.Errorf("devices = %+v", desc.Opt.Devices)
	}
	if desc.Opt.Acquisition.Period().Milliseconds() != DefaultPeriodMs {
		t.Errorf("period = %v", desc.Opt.Acquisition.Period())
	}
}

func TestParseFile(t *testing.T) {
	p := writeConfig(t, `
grpc:
  port: 19000
acquisition:
  period_ms: 20
  priority: -5
bus:
  backend: sim
  max_transfer: 64
devices:
  imu:
    max_burst: 16
    accel_odr: 476
  microphone:
    enabled: true
    source: /tmp/mic.pcm
engine:
  manifest: /etc/edgeml/model.yaml
  prediction_interval_ms: 500
report:
  serial: /dev/ttyS0
debug: true
`)
	desc := NewEdgeMLDesc()
	if err := desc.Parse(newCmd(t, p)); err != nil {
		t.Fatal(err)
	}
	o := desc.Opt
	if o.GRPC.Port != 19000 || o.GRPC.Interface != DefaultGRPCInterface {
		t.Errorf("grpc = %+v", o.GRPC)
	}
	if o.Acquisition.PeriodMs != 20 || o.Acquisition.Priority != -5 || o.Acquisition.FaultThreshold != DefaultFaultThreshold {
		t.Errorf("acquisition = %+v", o.Acquisition)
	}
	if o.Bus.Backend != BackendSim || o.Bus.MaxTransfer != 64 {
		t.Errorf("bus = %+v", o.Bus)
	}
	if o.Devices.IMU.MaxBurst != 16 || o.Devices.IMU.AccelODR != 476 || o.Devices.IMU.MaxChunk != DefaultMaxChunk {
		t.Errorf("imu = %+v", o.Devices.IMU)
	}
	if !o.Devices.Microphone.Enabled || o.Devices.Microphone.Source != "/tmp/mic.pcm" {
		t.Errorf("microphone = %+v", o.Devices.Microphone)
	}
	if o.Engine.Manifest != "/etc/edgeml/model.yaml" || o.Engine.PredictionInterval().Milliseconds() != 500 {
		t.Errorf("engine = %+v", o.Engine)
	}
	if o.Report.Serial != "/dev/ttyS0" || o.Report.Baud != DefaultReportBaud {
		t.Errorf("report = %+v", o.Report)
	}
	if !o.Debug {
		t.Error("debug not set")
	}
}

func TestParseEnvAndFlags(t *testing.T) {
	t.Setenv("EDGEML_ACQUISITION_PERIOD_MS", "25")
	cmd := newCmd(t, writeConfig(t, "debug: false\n"))
	if err := cmd.Flags().Set("port", "9999"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("sim", "true"); err != nil {
		t.Fatal(err)
	}
	desc := NewEdgeMLDesc()
	if err := desc.Parse(cmd); err != nil {
		t.Fatal(err)
	}
	if desc.Opt.Acquisition.PeriodMs != 25 {
		t.Errorf("period_ms = %d", desc.Opt.Acquisition.PeriodMs)
	}
	if desc.Opt.API.Port != 9999 {
		t.Errorf("api.port = %d", desc.Opt.API.Port)
	}
	if desc.Opt.Bus.Backend != BackendSim {
		t.Errorf("backend = %q", desc.Opt.Bus.Backend)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(o *EdgeMLOpt)
		ok     bool
	}{
		{"defaults", func(o *EdgeMLOpt) {}, true},
		{"bad backend", func(o *EdgeMLOpt) { o.Bus.Backend = "spi" }, false},
		{"zero period", func(o *EdgeMLOpt) { o.Acquisition.PeriodMs = 0 }, false},
		{"priority range", func(o *EdgeMLOpt) { o.Acquisition.Priority = -30 }, false},
		{"zero transfer", func(o *EdgeMLOpt) { o.Bus.MaxTransfer = 0 }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := NewEdgeMLOpt()
			c.modify(&o)
			if err := o.Validate(); (err == nil) != c.ok {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestSaveConfig(t *testing.T) {
	p := writeConfig(t, "debug: true\n")
	desc := NewEdgeMLDesc()
	if err := desc.Parse(newCmd(t, p)); err != nil {
		t.Fatal(err)
	}
	desc.Opt.GRPC.Port = 12345
	if err := desc.SaveConfig(); err != nil {
		t.Fatal(err)
	}
	again := NewEdgeMLDesc()
	if err := again.Parse(newCmd(t, p)); err != nil {
		t.Fatal(err)
	}
	if again.Opt.GRPC.Port != 12345 || !again.Opt.Debug {
		t.Errorf("reloaded = %+v", again.Opt.GRPC)
	}
}
