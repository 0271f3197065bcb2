// Package config turns viper settings into a validated daemon configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.klb.dev/clipring/internal/clip"
	"go.klb.dev/clipring/internal/hotkey"
	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/input"
	"go.klb.dev/clipring/internal/monitor"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Keys understood by Load. Flags, CLIPRING_* env vars and the TOML file all
// use these names.
const (
	KeyCapacity        = "capacity"
	KeyPollInterval    = "poll-interval"
	KeyBackends        = "backends"
	KeyHotkey          = "hotkey"
	KeyNextKey         = "next-key"
	KeyPrevKey         = "prev-key"
	KeyQuickPaste      = "quick-paste"
	KeyPasteKeys       = "paste-keys"
	KeySettleDelay     = "settle-delay"
	KeyInjectTimeout   = "inject-timeout"
	KeySuppressWindow  = "suppress-window"
	KeySkipSensitive   = "skip-sensitive"
	KeyNotifySensitive = "notify-sensitive"
	KeyMaxItemSize     = "max-item-size"
	KeySnapshot        = "snapshot"
	KeyInputDir        = "input-dir"
	KeyUinputPath      = "uinput-path"
	KeyNoHotkeys       = "no-hotkeys"
	KeyNoInject        = "no-inject"
)

const (
	DefaultCapacity    = 100
	DefaultHotkey      = "super+v"
	DefaultPasteKeys   = "ctrl+v"
	DefaultMaxItemSize = "16mb"
)

// Config is the validated daemon configuration.
type Config struct {
	Capacity        int
	PollInterval    time.Duration
	Backends        []string
	Bindings        []hotkey.Binding
	PasteKeys       []uint16
	SettleDelay     time.Duration
	InjectTimeout   time.Duration
	SuppressWindow  time.Duration
	SkipSensitive   bool
	NotifySensitive bool
	MaxItemSize     int
	// Snapshot is the history file; empty keeps history in memory only.
	Snapshot   string
	InputDir   string
	UinputPath string
	NoHotkeys  bool
	NoInject   bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyCapacity, DefaultCapacity)
	v.SetDefault(KeyPollInterval, monitor.DefaultPollInterval)
	v.SetDefault(KeyBackends, clip.DefaultBackends)
	v.SetDefault(KeyHotkey, DefaultHotkey)
	v.SetDefault(KeyNextKey, "")
	v.SetDefault(KeyPrevKey, "")
	v.SetDefault(KeyQuickPaste, []string{})
	v.SetDefault(KeyPasteKeys, DefaultPasteKeys)
	v.SetDefault(KeySettleDelay, inject.DefaultSettleDelay)
	v.SetDefault(KeyInjectTimeout, inject.DefaultTimeout)
	v.SetDefault(KeySuppressWindow, monitor.DefaultSuppressWindow)
	v.SetDefault(KeySkipSensitive, true)
	v.SetDefault(KeyNotifySensitive, false)
	v.SetDefault(KeyMaxItemSize, DefaultMaxItemSize)
	v.SetDefault(KeySnapshot, DefaultSnapshotPath())
	v.SetDefault(KeyInputDir, input.DefaultDir)
	v.SetDefault(KeyUinputPath, inject.DefaultUinputPath)
	v.SetDefault(KeyNoHotkeys, false)
	v.SetDefault(KeyNoInject, false)
}

// DefaultSnapshotPath returns $XDG_STATE_HOME/clipring/history.json, falling
// back to ~/.local/state. It returns "" when neither can be resolved.
func DefaultSnapshotPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "clipring", "history.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "clipring", "history.json")
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Capacity:        v.GetInt(KeyCapacity),
		PollInterval:    v.GetDuration(KeyPollInterval),
		Backends:        splitList(v.GetStringSlice(KeyBackends)),
		SettleDelay:     v.GetDuration(KeySettleDelay),
		InjectTimeout:   v.GetDuration(KeyInjectTimeout),
		SuppressWindow:  v.GetDuration(KeySuppressWindow),
		SkipSensitive:   v.GetBool(KeySkipSensitive),
		NotifySensitive: v.GetBool(KeyNotifySensitive),
		MaxItemSize:     int(v.GetSizeInBytes(KeyMaxItemSize)),
		Snapshot:        v.GetString(KeySnapshot),
		InputDir:        v.GetString(KeyInputDir),
		UinputPath:      v.GetString(KeyUinputPath),
		NoHotkeys:       v.GetBool(KeyNoHotkeys),
		NoInject:        v.GetBool(KeyNoInject),
	}

	if cfg.Capacity < 1 {
		return Config{}, fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyCapacity, cfg.Capacity)
	}
	if c := monitor.ClampInterval(cfg.PollInterval); c != cfg.PollInterval {
		slog.Warn("poll interval out of range, clamped", "requested", cfg.PollInterval, "using", c)
		cfg.PollInterval = c
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = clip.DefaultBackends
	}
	for _, b := range cfg.Backends {
		if !clip.Known(b) {
			return Config{}, fmt.Errorf("%w: unknown backend %q", ErrInvalid, b)
		}
	}
	if cfg.SettleDelay < 0 {
		return Config{}, fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeySettleDelay)
	}
	if cfg.InjectTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyInjectTimeout)
	}
	if cfg.SettleDelay >= cfg.InjectTimeout {
		return Config{}, fmt.Errorf("%w: %s (%s) must be shorter than %s (%s)",
			ErrInvalid, KeySettleDelay, cfg.SettleDelay, KeyInjectTimeout, cfg.InjectTimeout)
	}
	if cfg.SuppressWindow <= 0 {
		return Config{}, fmt.Errorf("%w: %s must be positive", ErrInvalid, KeySuppressWindow)
	}

	paste, err := hotkey.ParseChord(v.GetString(KeyPasteKeys))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyPasteKeys, err)
	}
	cfg.PasteKeys = paste.Codes()

	cfg.Bindings, err = bindings(v)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindings(v *viper.Viper) ([]hotkey.Binding, error) {
	type raw struct {
		key, name, chord string
		action           hotkey.Action
	}
	raws := []raw{
		{KeyHotkey, "open", v.GetString(KeyHotkey), hotkey.Action{Kind: hotkey.Open}},
		{KeyNextKey, "next", v.GetString(KeyNextKey), hotkey.Action{Kind: hotkey.Next}},
		{KeyPrevKey, "prev", v.GetString(KeyPrevKey), hotkey.Action{Kind: hotkey.Prev}},
	}
	for i, c := range splitList(v.GetStringSlice(KeyQuickPaste)) {
		a := hotkey.Action{Kind: hotkey.QuickPaste, Slot: i + 1}
		raws = append(raws, raw{KeyQuickPaste, a.String(), c, a})
	}

	var out []hotkey.Binding
	seen := make(map[string]string)
	for _, s := range raws {
		if strings.TrimSpace(s.chord) == "" {
			continue
		}
		c, err := hotkey.ParseChord(s.chord)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, s.key, err)
		}
		if other, dup := seen[c.Canonical()]; dup {
			return nil, fmt.Errorf("%w: chord %q bound to both %s and %s", ErrInvalid, c.String(), other, s.name)
		}
		seen[c.Canonical()] = s.name
		out = append(out, hotkey.Binding{Name: s.name, Chord: c, Action: s.action})
	}
	return out, nil
}

// splitList accepts both TOML arrays and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
