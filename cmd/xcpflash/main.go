// Command xcpflash reprograms a target MCU bootloader from a Motorola
// S-record file over XCP 1.0, using the reference SocketCAN or virtual
// transports. Flag handling follows cmd/sdo_client/main.go's shape.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/samsamfire/xcpflash/pkg/config"
	"github.com/samsamfire/xcpflash/pkg/port"
	"github.com/samsamfire/xcpflash/pkg/srec"
	"github.com/samsamfire/xcpflash/pkg/transport/socketcan"
	"github.com/samsamfire/xcpflash/pkg/transport/virtual"
	"github.com/samsamfire/xcpflash/pkg/update"
	"github.com/samsamfire/xcpflash/pkg/xcp"
)

func main() {
	firmwarePath := flag.String("f", "", "path to the S-record (.s19/.s28/.s37) firmware image")
	configPath := flag.String("c", "", "path to an xcpflash .ini config file (optional)")
	iface := flag.String("i", "vcan0", "SocketCAN interface, or host:port for -transport=virtual")
	transportKind := flag.String("transport", "socketcan", "transport backend: socketcan or virtual")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *firmwarePath == "" {
		slog.Error("missing required -f firmware path")
		os.Exit(2)
	}

	settings := xcp.DefaultSettings()
	kind := *transportKind
	ifaceName := *iface
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			slog.Error("loading config failed", "err", err)
			os.Exit(1)
		}
		settings = cfg.Settings
		kind = cfg.Transport.Kind
		ifaceName = cfg.Transport.Interface
	}

	p, closeFn, err := openTransport(kind, ifaceName)
	if err != nil {
		slog.Error("opening transport failed", "transport", kind, "err", err)
		os.Exit(1)
	}
	defer closeFn()

	err = update.Update(p, update.Options{
		FirmwarePath: *firmwarePath,
		ProtocolID:   "XCP_V10",
		Settings:     settings,
		Reader:       srec.New(),
	})
	if err != nil {
		slog.Error("firmware update failed", "err", err)
		os.Exit(1)
	}
	slog.Info("firmware update succeeded", "file", *firmwarePath)
}

func openTransport(kind, name string) (port.Port, func() error, error) {
	switch kind {
	case "virtual":
		p, err := virtual.Dial(name)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		p, err := socketcan.New(name, socketcan.DefaultTxID, socketcan.DefaultRxID)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
}
