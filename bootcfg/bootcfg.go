// Package bootcfg rewrites bootloader menu configurations for network
// boot. Ubuntu installer boot menus mark the end of the install-time
// kernel command line with a literal "---"; everything this tool injects
// pivots around that marker.
package bootcfg

import "strings"

// Marker separates install-only kernel parameters from the rest of a menu
// entry's command line.
const Marker = "---"

// DefaultNetbootArgs make the installer fetch its root filesystem over the
// network instead of from local media.
var DefaultNetbootArgs = []string{"root=/dev/ram0", "ramdisk_size=1500000", "ip=dhcp"}

const pxelinuxSeed = `DEFAULT install
LABEL install
  KERNEL casper/vmlinuz
  INITRD casper/initrd
  APPEND ---`

// Config is a bootloader configuration document. The two constructors
// differ only in the starting buffer; mutation behavior is identical.
type Config struct {
	cfg string
}

// NewGrubConfig seeds a document from the grub.cfg scraped off the ISO.
func NewGrubConfig(seed string) *Config {
	return &Config{cfg: seed}
}

// NewPxelinuxConfig generates a starting document. Unlike for GRUB there
// is no file on the ISO to use as a seed.
func NewPxelinuxConfig() *Config {
	return &Config{cfg: pxelinuxSeed}
}

// AddKernelParams splices params into every line carrying the marker.
// With installOnly the parameters land immediately before the marker, so
// they apply to the install path only; otherwise they are appended after
// it. Every occurrence of the marker on a line is rewritten, and every
// line of the result ends in a newline, including the last.
func (c *Config) AddKernelParams(params []string, installOnly bool) {
	var b strings.Builder

	for _, line := range strings.Split(c.cfg, "\n") {
		if strings.Contains(line, Marker) {
			var paramStr string = strings.Join(params, " ")

			var replace string
			if installOnly {
				replace = paramStr + " " + Marker
			} else {
				replace = Marker + " " + paramStr
			}

			line = strings.ReplaceAll(line, Marker, replace)
		}

		b.WriteString(line)
		b.WriteByte('\n')
	}

	c.cfg = b.String()
}

func (c *Config) String() string {
	return c.cfg
}

// SetupKernelParams applies the full install-time command line to cfg:
// the netboot arguments plus the image URL first, then the autoinstall
// data source if one was given, then any extra arguments after the
// marker. Repeated calls to AddKernelParams compose left to right, so
// this ordering is what ends up on the boot line.
//
// Extra arguments are split on single spaces; quoted multi-word values
// are not preserved as one token.
func SetupKernelParams(cfg *Config, netbootArgs []string, imageURL, autoinstallURL, extraArgs string) {
	cfg.AddKernelParams(append(append([]string{}, netbootArgs...), "url="+imageURL), true)

	if autoinstallURL != "" {
		cfg.AddKernelParams([]string{`autoinstall "ds=nocloud-net;s=` + autoinstallURL + `"`}, true)
	}

	if extraArgs != "" {
		cfg.AddKernelParams(strings.Split(extraArgs, " "), false)
	}
}
