// Package bundle models a resolved DOS program bundle and resolves
// bundle locators (paths, archives, URLs) into one.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	jsdos "github.com/aperturerobotics/go-jsdos"
	"github.com/mitchellh/mapstructure"
)

// gesturesKey is the config key holding the touch control settings.
const gesturesKey = "gestures"

// Config is the presentation configuration carried by a bundle.
type Config map[string]any

// Gestures returns the raw gestures setting, or nil when absent.
func (c Config) Gestures() any {
	if c == nil {
		return nil
	}
	return c[gesturesKey]
}

// Decode decodes the config into target using json field names.
func (c Config) Decode(target any) error {
	return DecodeValue(map[string]any(c), target)
}

// DecodeValue decodes an arbitrary config value into target.
func DecodeValue(value, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}

// Bundle is a resolved, loadable DOS program and its resources.
type Bundle struct {
	// ID identifies the bundle contents.
	ID string
	// Locator is the source the bundle was resolved from.
	Locator string
	// FS holds the program files rooted at the bundle root.
	FS fs.FS
	// Config is the parsed .jsdos/jsdos.json, empty when missing.
	Config Config

	cleanup func() error
}

// New builds a bundle over fsys and loads its config.
func New(locator, id string, fsys fs.FS) (*Bundle, error) {
	cfg, err := loadConfig(fsys)
	if err != nil {
		return nil, err
	}
	return &Bundle{ID: id, Locator: locator, FS: fsys, Config: cfg}, nil
}

// HasFile reports whether name exists in the bundle.
func (b *Bundle) HasFile(name string) bool {
	_, err := fs.Stat(b.FS, name)
	return err == nil
}

// Close releases any temporary storage backing the bundle.
func (b *Bundle) Close() error {
	if b.cleanup == nil {
		return nil
	}
	fn := b.cleanup
	b.cleanup = nil
	return fn()
}

func loadConfig(fsys fs.FS) (Config, error) {
	data, err := fs.ReadFile(fsys, jsdos.BundleJSONConf)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", jsdos.BundleJSONConf, err)
	}

	cfg := Config{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", jsdos.BundleJSONConf, err)
	}
	return cfg, nil
}
