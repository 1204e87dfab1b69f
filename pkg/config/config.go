// Package config loads XCP loader and transport settings from an .ini
// file, the same key/value configuration format the teacher uses for
// EDS object dictionaries (pkg/od/parser_v1.go).
package config

import (
	"fmt"
	"time"

	"github.com/samsamfire/xcpflash/pkg/xcp"
	"gopkg.in/ini.v1"
)

// Transport holds the reference transport parameters: which
// pkg/transport backend to use and how to address the target.
type Transport struct {
	Kind      string // "virtual" or "socketcan"
	Interface string // e.g. "can0", or host:port for the virtual transport
	TxID      uint32 // master->target CAN id, ignored by the virtual transport
	RxID      uint32 // target->master CAN id, ignored by the virtual transport
}

// File is the parsed contents of one xcpflash configuration file.
type File struct {
	Settings  xcp.Settings
	Transport Transport
}

// Load reads path as an .ini file with an [xcp] section for protocol
// timeouts and a [transport] section for the reference transport.
// Missing keys fall back to xcp.DefaultSettings.
func Load(path string) (File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}

	settings := xcp.DefaultSettings()
	xcpSection := cfg.Section("xcp")
	settings.T1 = durationKey(xcpSection, "T1", settings.T1)
	settings.T3 = durationKey(xcpSection, "T3", settings.T3)
	settings.T4 = durationKey(xcpSection, "T4", settings.T4)
	settings.T5 = durationKey(xcpSection, "T5", settings.T5)
	settings.T6 = durationKey(xcpSection, "T6", settings.T6)
	settings.T7 = durationKey(xcpSection, "T7", settings.T7)
	settings.ConnectMode = byte(xcpSection.Key("ConnectMode").MustUint(0))
	settings.SeedKeyEnabled = xcpSection.Key("SeedKeyEnabled").MustBool(false)

	transportSection := cfg.Section("transport")
	transport := Transport{
		Kind:      transportSection.Key("Kind").MustString("virtual"),
		Interface: transportSection.Key("Interface").MustString("can0"),
		TxID:      uint32(transportSection.Key("TxID").MustUint(0x667)),
		RxID:      uint32(transportSection.Key("RxID").MustUint(0x7E1)),
	}

	return File{Settings: settings, Transport: transport}, nil
}

func durationKey(section *ini.Section, name string, fallback time.Duration) time.Duration {
	ms := section.Key(name).MustInt(int(fallback / time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
