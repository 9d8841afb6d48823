// ABOUTME: hearcast command line entrypoint
// ABOUTME: serve runs the streamer; devices and discover are inspection helpers
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hearcast/hearcast/internal/app"
	"github.com/hearcast/hearcast/internal/capture"
	"github.com/hearcast/hearcast/internal/config"
	"github.com/hearcast/hearcast/internal/logging"
	"github.com/hearcast/hearcast/internal/upnp"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hearcast",
	Short: "Stream what you hear to UPnP/DLNA and OpenHome renderers",
	Long: `hearcast captures live audio from a local sound device, serves it as an
HTTP WAV stream, and drives network media renderers to play it.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture pipeline, streaming server, and renderer sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log := logging.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Int("port", cfg.ListenPort).Str("stream", cfg.StreamName).Msg("hearcast starting")
		return app.New(cfg, log).Run(ctx)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := capture.Devices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %s (%d ch, %d Hz)\n", marker, d.Name, d.Channels, d.SampleRate)
		}
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one SSDP discovery pass and list renderers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log := logging.New(cfg.LogLevel)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.SSDPWindow+10*time.Second)
		defer cancel()

		renderers, err := upnp.NewDiscoverer(log).Search(ctx, cfg.SSDPWindow)
		if err != nil {
			return err
		}
		if len(renderers) == 0 {
			fmt.Println("no renderers found")
			return nil
		}
		for _, r := range renderers {
			fmt.Printf("%s  %s  [%s]  %s\n", r.ID, r.Name, r.Protocol, r.ControlURL)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().Int("port", 5901, "streaming server port")
	rootCmd.PersistentFlags().String("name", "hearcast", "stream name (the .wav resource name)")
	rootCmd.PersistentFlags().String("device", "", "capture device name (default: system input)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace..error)")

	viper.BindPFlag("listen_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("stream_name", rootCmd.PersistentFlags().Lookup("name"))
	viper.BindPFlag("capture_device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(discoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
