package input

import (
	"path/filepath"
	"slices"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// Device is an opened input node.
type Device struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// keys every real keyboard reports.
var keyboardKeys = []evdev.EvCode{
	evdev.KEY_ENTER,
	evdev.KEY_A,
	evdev.KEY_Z,
	evdev.KEY_SPACE,
}

// IsKeyboard reports whether n can type: it must report the letter, enter
// and space keys. Power buttons and mice with a few key codes are not
// keyboards.
func IsKeyboard(n Node) bool {
	caps := n.CapableEvents(evdev.EV_KEY)
	for _, k := range keyboardKeys {
		if !slices.Contains(caps, k) {
			return false
		}
	}
	return true
}

// nodeName returns the kernel name of the device, or the node name.
func nodeName(n Node, path string) string {
	name, err := n.Name()
	if name = strings.TrimSpace(name); err != nil || name == "" {
		return filepath.Base(path)
	}
	return name
}
