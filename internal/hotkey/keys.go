package hotkey

import (
	"maps"
	"slices"
	"strconv"
)

// Key codes from linux/input-event-codes.h.
const (
	KeyEsc        = 1
	KeyMinus      = 12
	KeyEqual      = 13
	KeyBackspace  = 14
	KeyTab        = 15
	KeyLeftBrace  = 26
	KeyRightBrace = 27
	KeyEnter      = 28
	KeyLeftCtrl   = 29
	KeySemicolon  = 39
	KeyApostrophe = 40
	KeyGrave      = 41
	KeyLeftShift  = 42
	KeyBackslash  = 43
	KeyV          = 47
	KeyComma      = 51
	KeyDot        = 52
	KeySlash      = 53
	KeyRightShift = 54
	KeyLeftAlt    = 56
	KeySpace      = 57
	KeyRightCtrl  = 97
	KeyRightAlt   = 100
	KeyHome       = 102
	KeyUp         = 103
	KeyPageUp     = 104
	KeyLeft       = 105
	KeyRight      = 106
	KeyEnd        = 107
	KeyDown       = 108
	KeyPageDown   = 109
	KeyInsert     = 110
	KeyDelete     = 111
	KeyLeftMeta   = 125
	KeyRightMeta  = 126
)

// keyNames maps a chord token to the codes that satisfy it. Modifiers accept
// either side.
var keyNames = map[string][]uint16{
	"ctrl":  {KeyLeftCtrl, KeyRightCtrl},
	"shift": {KeyLeftShift, KeyRightShift},
	"alt":   {KeyLeftAlt, KeyRightAlt},
	"altgr": {KeyRightAlt},
	"super": {KeyLeftMeta, KeyRightMeta},

	"esc":        {KeyEsc},
	"tab":        {KeyTab},
	"space":      {KeySpace},
	"enter":      {KeyEnter},
	"backspace":  {KeyBackspace},
	"insert":     {KeyInsert},
	"delete":     {KeyDelete},
	"home":       {KeyHome},
	"end":        {KeyEnd},
	"pageup":     {KeyPageUp},
	"pagedown":   {KeyPageDown},
	"up":         {KeyUp},
	"down":       {KeyDown},
	"left":       {KeyLeft},
	"right":      {KeyRight},
	"grave":      {KeyGrave},
	"minus":      {KeyMinus},
	"equal":      {KeyEqual},
	"comma":      {KeyComma},
	"dot":        {KeyDot},
	"slash":      {KeySlash},
	"semicolon":  {KeySemicolon},
	"apostrophe": {KeyApostrophe},
	"leftbrace":  {KeyLeftBrace},
	"rightbrace": {KeyRightBrace},
	"backslash":  {KeyBackslash},
}

var aliases = map[string]string{
	"control": "ctrl",
	"meta":    "super",
	"win":     "super",
	"cmd":     "super",
	"escape":  "esc",
	"return":  "enter",
	"ins":     "insert",
	"del":     "delete",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
	"period":  "dot",
}

func init() {
	rows := []struct {
		keys  string
		first uint16
	}{
		{"1234567890", 2},
		{"qwertyuiop", 16},
		{"asdfghjkl", 30},
		{"zxcvbnm", 44},
	}
	for _, row := range rows {
		for i, r := range row.keys {
			keyNames[string(r)] = []uint16{row.first + uint16(i)}
		}
	}
	for i := range 10 {
		keyNames["f"+strconv.Itoa(i+1)] = []uint16{uint16(59 + i)}
	}
	keyNames["f11"] = []uint16{87}
	keyNames["f12"] = []uint16{88}
	for i := range 12 {
		keyNames["f"+strconv.Itoa(i+13)] = []uint16{uint16(183 + i)}
	}
}

// KeyNames returns every key name a chord may use, sorted.
func KeyNames() []string {
	return slices.Sorted(maps.Keys(keyNames))
}

// Aliases returns alternative spellings and the key each one means.
func Aliases() map[string]string {
	return maps.Clone(aliases)
}
