package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aperturerobotics/go-jsdos/internal/config"
	"github.com/aperturerobotics/go-jsdos/toolkit/web"
)

// locatorPolicy limits page-submitted locators to what cfg allows. Local
// paths must sit under the bundle root, the working directory by default.
func locatorPolicy(cfg config.Config) web.LocatorPolicy {
	return func(locator string) error {
		if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
			if !cfg.AllowRemote {
				return fmt.Errorf("%w: remote bundles are disabled", web.ErrLocatorDenied)
			}
			return nil
		}
		dir := cfg.BundleRoot
		if dir == "" {
			dir = "."
		}

		root, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		path, err := filepath.Abs(locator)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s is outside the bundle root", web.ErrLocatorDenied, locator)
		}
		return nil
	}
}
