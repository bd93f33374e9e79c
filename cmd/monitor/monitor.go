package main

import (
	"bufio"
	"context"
	grpc2 "edgeml/internal/controller/grpc"
	"edgeml/internal/dashboard"
	"encoding/json"
	"fmt"
	ui "github.com/gizak/termui/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/durationpb"
	"os"
	"time"
)

func updateValue(ctx context.Context, address string, interval time.Duration, record bool, d *dashboard.Dashboard) {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()
	c := grpc2.NewClient(conn)

	s, err := c.WatchStatus(ctx, durationpb.New(interval))
	if err != nil {
		log.Fatalf("could not watch status: %v", err)
	}

	var writer *bufio.Writer
	if record {
		file, err := os.Create(fmt.Sprintf("%v.jsonl", time.Now().Format("2006-01-02T15-04-05")))
		if err != nil {
			log.Fatalf("could not create file: %v", err)
		}
		defer file.Close()
		writer = bufio.NewWriter(file)
		defer writer.Flush()
	}

	for idx := 0; ; idx++ {
		st, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("could not receive status: %v", err)
		}
		d.Update(st, nil)
		d.Render()

		if writer == nil {
			continue
		}
		line, err := json.Marshal(st)
		if err != nil {
			log.Fatalf("Error marshaling status to JSON: %v", err)
		}
		if _, err = writer.Write(append(line, '\n')); err != nil {
			log.Fatalf("Error writing status to file: %v", err)
		}
		if idx%100 == 0 {
			if err = writer.Flush(); err != nil {
				log.Fatalf("Error flushing buffer: %v", err)
			}
		}
	}
}

func _main(cmd *cobra.Command, args []string) {
	log.Info("Starting")
	address, _ := cmd.Flags().GetString("address")
	interval, _ := cmd.Flags().GetDuration("interval")
	record, _ := cmd.Flags().GetBool("record")
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := ui.Init(); err != nil {
		log.Fatalf("failed to initialize termui: %v", err)
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		updateValue(ctx, address, interval, record, dashboard.New())
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
	Use:   "monitor",
	Short: "monitor",
	Long:  "monitor watches the status of a running edgeml server over grpc",
	Run: func(cmd *cobra.Command, args []string) {
		_main(cmd, args)
	},
}

func main() {
	rootCmd.Flags().String("address", "127.0.0.1:18890", "default dial address")
	rootCmd.Flags().Duration("interval", 200*time.Millisecond, "status refresh interval")
	rootCmd.Flags().Bool("record", false, "record every status to a jsonl file")
	rootCmd.Flags().Bool("debug", false, "toggle debug logging")

	err := rootCmd.Execute()
	if err != nil {
		return
	}
}
