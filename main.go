// ABOUTME: Entry point for the SlimProto player
// ABOUTME: Parses CLI flags, sets up logging and runs the player until signalled
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/slimplayer/internal/app"
	"github.com/Resonate-Protocol/slimplayer/internal/config"
	"github.com/Resonate-Protocol/slimplayer/internal/pipeline"
	"github.com/Resonate-Protocol/slimplayer/internal/report"
	"github.com/Resonate-Protocol/slimplayer/internal/retry"
	"github.com/Resonate-Protocol/slimplayer/internal/session"
	"github.com/Resonate-Protocol/slimplayer/internal/ui"
	"github.com/Resonate-Protocol/slimplayer/internal/version"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio/decode"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio/output"
	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

var (
	configPath  = flag.StringP("config", "c", "", "YAML config file")
	serverAddr  = flag.StringP("server", "s", "", "Server host name or address")
	port        = flag.Int("port", config.DefaultPort, "Server control port")
	name        = flag.StringP("name", "n", config.DefaultName, "Player name")
	bufferSize  = flag.IntP("buffersize", "b", config.DefaultBufferSizeKiB, "Stream buffer size in KiB")
	mac         = flag.String("mac", "", "MAC address to report (default: first interface)")
	outputName  = flag.StringP("output", "o", "", "Output device name (reported only)")
	logFile     = flag.String("log-file", config.DefaultLogFile, "Log file path")
	logLevel    = flag.StringP("log-level", "d", "info", "Log level: info or debug")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, stream logs to stdout")
	statusAddr  = flag.String("status-addr", "", "Serve the status feed on this address (e.g. :8090)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	useTUI := !cfg.NoTUI

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	hw, err := playerMAC(cfg.MAC, net.Interfaces)
	if err != nil {
		log.Fatalf("Failed to determine MAC address: %v", err)
	}

	log.Printf("Starting %s: %q (mac %s)", version.String(), cfg.Name, hw)
	if cfg.Output != "" {
		log.Printf("Output device: %s", cfg.Output)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(cfg.Name, controls)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			stop()
		}()
	}

	// Helper to update TUI
	updateTUI := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	feed := report.NewFeed()
	if cfg.StatusAddr != "" {
		go func() {
			if err := feed.Run(ctx, cfg.StatusAddr); err != nil {
				log.Printf("Status feed stopped: %v", err)
			}
		}()
	}

	out := output.NewOto()
	defer out.Close()
	adapter := pipeline.NewAdapter(pipeline.NewLocal(out))

	caps := slimproto.Capabilities{
		Codecs:        decode.Codecs,
		Model:         version.Model,
		ModelName:     version.Product,
		Firmware:      version.Version,
		MaxSampleRate: cfg.MaxSampleRate,
	}

	player := app.New(app.Config{
		Address: cfg.Address(),
		Name:    cfg.Name,
		Helo: slimproto.Helo{
			DeviceID:     slimproto.DeviceID,
			MAC:          hw,
			UUID:         uuid.New(),
			Capabilities: caps,
		},
		HandshakeTimeout: cfg.Timing.HandshakeTimeout,
		SilenceTimeout:   cfg.Timing.SilenceTimeout,
		WriteTimeout:     cfg.Timing.WriteTimeout,
		Debug:            cfg.Debug(),
		Backoff: &retry.Backoff{
			InitialDelay: cfg.Backoff.Initial,
			MaxDelay:     cfg.Backoff.Max,
			Multiplier:   cfg.Backoff.Multiplier,
			Jitter:       cfg.Backoff.Jitter,
			ReportAfter:  cfg.Backoff.ReportAfter,
		},
		Session: session.Config{
			Capabilities: caps,
			BufferSize:   cfg.BufferSize(),
			Heartbeat:    cfg.Timing.Heartbeat,
			StallTimeout: cfg.Timing.StallTimeout,
			DataRetries:  cfg.Timing.DataRetries,
			LowWatermark: cfg.Timing.LowWatermark,
			Debug:        cfg.Debug(),
			Pipeline:     adapter,
			OnStatus: func(st session.Status) {
				feed.Publish(st)
				updateTUI(ui.StatusMsg{Status: st})
			},
		},
		OnConnection: func(connected bool, address string) {
			updateTUI(ui.ConnMsg{Connected: connected, Server: address})
		},
		OnError: func(err error) {
			updateTUI(ui.ErrorMsg{Err: err})
		},
	})

	if controls != nil {
		go handleControls(ctx, player, controls, stop)
	}

	if err := player.Run(ctx); err != nil {
		log.Printf("Player error: %v", err)
	}
	adapter.Stop()

	if tuiProg != nil {
		tuiProg.Quit()
	}
}

// handleControls processes key requests from the TUI
func handleControls(ctx context.Context, player *app.Player, controls *ui.Controls, quit func()) {
	for {
		select {
		case <-controls.Reconnect:
			log.Printf("Reconnect requested")
			player.Reconnect()
		case <-controls.Quit:
			log.Printf("Received quit signal from TUI")
			quit()
			return
		case <-ctx.Done():
			return
		}
	}
}

// applyFlags copies explicitly set flags over the file configuration
func applyFlags(fs *flag.FlagSet, cfg *config.Config) {
	if fs.Changed("server") {
		cfg.Server = *serverAddr
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("name") {
		cfg.Name = *name
	}
	if fs.Changed("buffersize") {
		cfg.BufferSizeKiB = *bufferSize
	}
	if fs.Changed("mac") {
		cfg.MAC = *mac
	}
	if fs.Changed("output") {
		cfg.Output = *outputName
	}
	if fs.Changed("log-file") {
		cfg.LogFile = *logFile
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("no-tui") {
		cfg.NoTUI = *noTUI
	}
	if fs.Changed("status-addr") {
		cfg.StatusAddr = *statusAddr
	}
}

// playerMAC returns the configured MAC, else the first non-loopback
// interface with a 6-byte address, else a random locally administered one
func playerMAC(configured string, interfaces func() ([]net.Interface, error)) (net.HardwareAddr, error) {
	if configured != "" {
		hw, err := net.ParseMAC(configured)
		if err != nil {
			return nil, err
		}
		if len(hw) != 6 {
			return nil, fmt.Errorf("mac %q is not 6 bytes", configured)
		}
		return hw, nil
	}

	if ifaces, err := interfaces(); err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) != 6 {
				continue
			}
			return iface.HardwareAddr, nil
		}
	}

	id := uuid.New()
	hw := net.HardwareAddr(append([]byte{}, id[:6]...))
	hw[0] = (hw[0] | 0x02) &^ 0x01
	return hw, nil
}
