package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

type Configuration struct {
	Reader struct {
		Tool string `toml:"tool" default:"isoinfo" validate:"required"` // External ISO9660 reader binary (genisoimage and cdrkit both provide isoinfo)
	} `toml:"reader"` // ISO reading configuration

	Netboot struct {
		KernelParams []string `toml:"kernel_params" default:"[\"root=/dev/ram0\",\"ramdisk_size=1500000\",\"ip=dhcp\"]" validate:"required,dive,required"` // Kernel parameters that make the installer fetch its root over the network
	} `toml:"netboot"` // Netboot kernel parameter configuration

	Mirrors struct {
		Archive string `toml:"archive" default:"http://archive.ubuntu.com/ubuntu" validate:"required,url"`   // Package mirror for amd64/i386
		Ports   string `toml:"ports" default:"http://ports.ubuntu.com/ubuntu-ports" validate:"required,url"` // Package mirror for all other architectures
	} `toml:"mirrors"` // Ubuntu package mirrors for bootloader binaries

	Download struct {
		TimeoutSeconds int `toml:"timeout_seconds" default:"300" validate:"min=1"` // Per-request timeout for mirror and image downloads
		RetryMax       int `toml:"retry_max" default:"3" validate:"min=0"`         // Transport-level retries per request (HTTP 404 is never retried; it drives the pocket fallback instead)
	} `toml:"download"` // Download behavior

	Syslinux struct {
		Pxelinux string `toml:"pxelinux" default:"/usr/lib/PXELINUX/pxelinux.0" validate:"required"`              // Locally installed pxelinux.0 (package: pxelinux)
		Ldlinux  string `toml:"ldlinux" default:"/usr/lib/syslinux/modules/bios/ldlinux.c32" validate:"required"` // Locally installed ldlinux.c32 (package: syslinux-common)
	} `toml:"syslinux"` // Legacy PXE support files, only used for amd64 images
}

var (
	Config           Configuration
	loadedConfigPath string
)

func LoadedConfigPath() string {
	return loadedConfigPath
}

func loadConfig(path string) (err error) {
	// Apply struct defaults BEFORE loading TOML (so TOML overrides)
	if err = defaults.Set(&Config); err != nil {
		err = fmt.Errorf("set defaults: %w", err)
		return
	}

	if _, err = toml.DecodeFile(path, &Config); err != nil {
		err = fmt.Errorf("decode toml: %w", err)
		return
	}

	if err = validator.New(validator.WithRequiredStructEnabled()).Struct(Config); err != nil {
		err = fmt.Errorf("validate config: %w", err)
	}

	return
}

// generateDefaultConfig writes a config file with all default values
// filled in. It will overwrite any existing file at path.
func generateDefaultConfig(path string) (err error) {
	var cfg Configuration

	if err = defaults.Set(&cfg); err != nil {
		err = fmt.Errorf("set defaults: %w", err)
		return
	}

	var file *os.File
	if file, err = os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644); err != nil {
		err = fmt.Errorf("create config file: %w", err)
		return
	}

	defer file.Close()

	var encoder *toml.Encoder = toml.NewEncoder(file)
	encoder.Indent = "    "
	if err = encoder.Encode(cfg); err != nil {
		err = fmt.Errorf("encode toml: %w", err)
	}

	return
}

// Init loads the configuration. An empty path means defaults only; a path
// to a missing file gets a default config generated there so the user has
// something to edit.
func Init(path string) (err error) {
	if path == "" {
		if err = defaults.Set(&Config); err != nil {
			err = fmt.Errorf("set defaults: %w", err)
		}

		return
	}

	if !filepath.IsAbs(path) {
		if path, err = filepath.Abs(path); err != nil {
			return
		}
	}
	loadedConfigPath = path

	if _, err = os.Stat(path); err != nil {
		if err = generateDefaultConfig(path); err != nil {
			return
		}

		err = fmt.Errorf("no config file found, created a default config at %s. Please review the values and try again", path)
		return
	}

	return loadConfig(path)
}
