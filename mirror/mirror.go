// Package mirror chooses Ubuntu package mirrors and fetches the signed
// bootloader binaries a netboot tree needs.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/z46-dev/go-logger"

	"github.com/serverstack/ubuntu-server-netboot/config"
)

var ErrMirrorExhausted = errors.New("no mirror pocket had the requested file")

const (
	defaultArchiveMirror = "http://archive.ubuntu.com/ubuntu"
	defaultPortsMirror   = "http://ports.ubuntu.com/ubuntu-ports"
)

// uefiArchAbbrevs maps an Ubuntu architecture to the abbreviation used in
// signed GRUB EFI binary names.
var uefiArchAbbrevs = map[string]string{
	"amd64": "x64",
	"arm64": "aa64",
}

// UEFIArchAbbrev returns the EFI name abbreviation for an architecture,
// e.g. grubnetx64.efi for amd64 and grubnetaa64.efi for arm64.
func UEFIArchAbbrev(arch string) (abbrev string, err error) {
	var ok bool
	if abbrev, ok = uefiArchAbbrevs[arch]; !ok {
		err = fmt.Errorf("no UEFI bootloader is published for architecture %q", arch)
	}

	return
}

// SelectMirror picks the primary archive for amd64/i386 and the ports
// archive for everything else.
func SelectMirror(arch string) string {
	if arch == "amd64" || arch == "i386" {
		if m := config.Config.Mirrors.Archive; m != "" {
			return m
		}
		return defaultArchiveMirror
	}

	if m := config.Config.Mirrors.Ports; m != "" {
		return m
	}
	return defaultPortsMirror
}

// PocketCandidates orders the pockets to try for a release: the updates
// pocket carries newer signed bootloaders when it exists, the release
// pocket always exists.
func PocketCandidates(release string) []string {
	return []string{release + "-updates", release}
}

// Downloader fetches files over HTTP with transport-level retries. An
// HTTP 404 is never retried; callers use it to move to the next pocket.
type Downloader struct {
	client *retryablehttp.Client
	log    *logger.Logger
}

func NewDownloader() (d *Downloader) {
	d = &Downloader{
		client: retryablehttp.NewClient(),
		log:    logger.NewLogger().SetPrefix("[MIRROR]", logger.BoldBlue),
	}

	d.client.Logger = nil
	d.client.RetryMax = 3
	if config.Config.Download.RetryMax > 0 {
		d.client.RetryMax = config.Config.Download.RetryMax
	}

	d.client.HTTPClient.Timeout = 300 * time.Second
	if config.Config.Download.TimeoutSeconds > 0 {
		d.client.HTTPClient.Timeout = time.Duration(config.Config.Download.TimeoutSeconds) * time.Second
	}

	return
}

// tryFetch downloads url to outfile. A 404 reports found=false with no
// error so the caller can try the next candidate.
func (d *Downloader) tryFetch(url, outfile string) (found bool, err error) {
	var resp *http.Response
	if resp, err = d.client.Get(url); err != nil {
		return
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return
	}

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
		return
	}

	var outf *os.File
	if outf, err = os.Create(outfile); err != nil {
		return
	}

	defer outf.Close()

	if _, err = io.Copy(outf, resp.Body); err != nil {
		return
	}

	found = true
	return
}

// DownloadBootnet fetches the signed GRUB netboot EFI binary for the
// release and architecture into destdir, trying each pocket in order.
func (d *Downloader) DownloadBootnet(release, architecture, destdir string) (err error) {
	var abbrev string
	if abbrev, err = UEFIArchAbbrev(architecture); err != nil {
		return
	}

	for _, pocket := range PocketCandidates(release) {
		var url string = fmt.Sprintf(
			"%s/dists/%s/main/uefi/grub2-%s/current/grubnet%s.efi.signed",
			SelectMirror(architecture), pocket, architecture, abbrev,
		)

		d.log.Basicf("Attempting to download %s\n", url)

		var found bool
		if found, err = d.tryFetch(url, filepath.Join(destdir, "grubnet"+abbrev+".efi")); err != nil {
			return
		} else if found {
			return
		}
	}

	err = fmt.Errorf("%w: grubnet%s.efi.signed for %s", ErrMirrorExhausted, abbrev, release)
	return
}

// DownloadPxelinux fetches pxelinux.0 from the amd64 installer tree into
// destdir. Used as a network fallback when no local syslinux install is
// available.
func (d *Downloader) DownloadPxelinux(release, destdir string) (err error) {
	for _, pocket := range PocketCandidates(release) {
		var url string = fmt.Sprintf(
			"%s/dists/%s/main/installer-amd64/current/images/netboot/ubuntu-installer/amd64/pxelinux.0",
			SelectMirror("amd64"), pocket,
		)

		d.log.Basicf("Attempting to download %s\n", url)

		var found bool
		if found, err = d.tryFetch(url, filepath.Join(destdir, "pxelinux.0")); err != nil {
			return
		} else if found {
			return
		}
	}

	err = fmt.Errorf("%w: pxelinux.0 for %s", ErrMirrorExhausted, release)
	return
}

// DownloadISO fetches the installer image to a temporary file and returns
// its path together with a remove function the caller runs on every exit
// path.
func (d *Downloader) DownloadISO(url string) (path string, remove func(), err error) {
	var tmpf *os.File
	if tmpf, err = os.CreateTemp("", "ubuntu-server-netboot-*.iso"); err != nil {
		return
	}

	path = tmpf.Name()
	remove = func() { _ = os.Remove(path) }

	defer tmpf.Close()

	d.log.Statusf("Downloading %s\n", url)

	var resp *http.Response
	if resp, err = d.client.Get(url); err != nil {
		remove()
		path, remove = "", nil
		return
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	} else if _, err = io.Copy(tmpf, resp.Body); err != nil {
		err = fmt.Errorf("download %s: %w", url, err)
	}

	if err != nil {
		remove()
		path, remove = "", nil
	}

	return
}
