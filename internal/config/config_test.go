package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipring/internal/hotkey"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Capacity)
	assert.Equal(t, 300*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []string{"wayland", "x11", "xclip", "xsel"}, cfg.Backends)
	assert.Equal(t, 120*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.InjectTimeout)
	assert.Equal(t, time.Second, cfg.SuppressWindow)
	assert.True(t, cfg.SkipSensitive)
	assert.False(t, cfg.NotifySensitive)
	assert.Equal(t, 16<<20, cfg.MaxItemSize)
	assert.Equal(t, "/dev/input", cfg.InputDir)
	assert.Equal(t, "/dev/uinput", cfg.UinputPath)
	assert.Equal(t, []uint16{hotkey.KeyLeftCtrl, hotkey.KeyV}, cfg.PasteKeys)

	require.Len(t, cfg.Bindings, 1)
	assert.Equal(t, "open", cfg.Bindings[0].Name)
	assert.Equal(t, "super+v", cfg.Bindings[0].Chord.String())
	assert.Equal(t, hotkey.Open, cfg.Bindings[0].Action.Kind)
}

func TestTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipring.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
capacity = 25
poll-interval = "1s"
backends = ["xclip"]
next-key = "super+n"
quick-paste = ["super+1", "super+2"]
paste-keys = "shift+insert"
max-item-size = "1mb"
snapshot = ""
`), 0o600))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Capacity)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"xclip"}, cfg.Backends)
	assert.Equal(t, []uint16{hotkey.KeyLeftShift, hotkey.KeyInsert}, cfg.PasteKeys)
	assert.Equal(t, 1<<20, cfg.MaxItemSize)
	assert.Empty(t, cfg.Snapshot)

	var names []string
	for _, b := range cfg.Bindings {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"open", "next", "quick-paste-1", "quick-paste-2"}, names)
	assert.Equal(t, 2, cfg.Bindings[3].Action.Slot)
}

func TestCommaSeparatedLists(t *testing.T) {
	v := newViper()
	v.Set(KeyBackends, "x11, xsel")
	v.Set(KeyQuickPaste, []string{"ctrl+alt+1,ctrl+alt+2"})
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"x11", "xsel"}, cfg.Backends)
	assert.Len(t, cfg.Bindings, 3)
}

func TestPollIntervalClamped(t *testing.T) {
	v := newViper()
	v.Set(KeyPollInterval, "10ms")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)

	v.Set(KeyPollInterval, "1m")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestEmptyHotkeyDisablesBinding(t *testing.T) {
	v := newViper()
	v.Set(KeyHotkey, "")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Bindings)
}

func TestInvalid(t *testing.T) {
	cases := map[string]any{
		KeyCapacity:       0,
		KeyBackends:       "pasteboard",
		KeyHotkey:         "hyper+v",
		KeyPasteKeys:      "",
		KeySettleDelay:    "-1s",
		KeyInjectTimeout:  "0s",
		KeySuppressWindow: "0s",
		KeyQuickPaste:     []string{"super+v"},
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			v := newViper()
			v.Set(key, val)
			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestSettleMustBeShorterThanTimeout(t *testing.T) {
	v := newViper()
	v.Set(KeySettleDelay, "2s")
	v.Set(KeyInjectTimeout, "2s")
	_, err := Load(v)
	assert.ErrorIs(t, err, ErrInvalid)

	v.Set(KeySettleDelay, "1999ms")
	_, err = Load(v)
	assert.NoError(t, err)
}

func TestDuplicateChordInAnyOrder(t *testing.T) {
	for _, chord := range []string{"v+super", "meta+v", "V+Super"} {
		t.Run(chord, func(t *testing.T) {
			v := newViper()
			v.Set(KeyNextKey, chord)
			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDefaultSnapshotPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	assert.Equal(t, "/tmp/state/clipring/history.json", DefaultSnapshotPath())
}
