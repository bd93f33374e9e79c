package main

import (
	"context"
	"edgeml/internal/config"
	"edgeml/internal/dashboard"
	"edgeml/internal/manager/pipeline"
	"edgeml/internal/server"
	ui "github.com/gizak/termui/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"time"
)

const refreshInterval = 100 * time.Millisecond

// updateValue runs a local pipeline and classifies at the engine prediction
// interval until ctx is done
func updateValue(ctx context.Context, opt *config.EdgeMLOpt, d *dashboard.Dashboard) {
	e, err := server.LoadEngine(opt)
	if err != nil {
		log.Panicln(err)
	}
	m := pipeline.NewManager(opt, e)
	if err := m.Start(); err != nil {
		log.Panicln(err)
	}
	defer func() { _ = m.Stop() }()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	lastPrediction := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.Ready() && time.Since(lastPrediction) >= e.PredictionInterval() {
			lastPrediction = time.Now()
			if _, err := m.Classify(); err != nil {
				log.Warnln(err)
			}
		}
		d.Update(m.Status(), e.Classes())
		d.Render()
	}
}

func _main(cmd *cobra.Command, args []string) {
	log.Info("Starting")
	opt := server.NewMainApp(cmd, args).PrepareRun().GetOpt()
	if err := ui.Init(); err != nil {
		log.Fatalf("failed to initialize termui: %v", err)
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		updateValue(ctx, opt, dashboard.New())
	}()
	defer func() {
		cancel()
		<-done
	}()

	uiEvents := ui.PollEvents()
	for {
		e := <-uiEvents
		switch e.ID {
		case "q", "<C-c>":
			return
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "playground",
	Long:  "playground runs the acquisition pipeline in the foreground and shows its state",
	Run: func(cmd *cobra.Command, args []string) {
		_main(cmd, args)
	},
}

func main() {
	rootCmd.Flags().String("config", "", "default configuration path")
	rootCmd.Flags().Bool("debug", false, "toggle debug logging")
	rootCmd.Flags().Bool("sim", false, "use synthetic devices instead of the i2c bus")

	err := rootCmd.Execute()
	if err != nil {
		return
	}
}
