package config

// ConfigBackend is where `xposter config set` persists values: the
// `defaults` domain on macOS, a JSON file elsewhere. Keys are the dotted
// names of the key table, e.g. "timing.surface_timeout".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
