package iso

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/z46-dev/go-logger"

	"github.com/serverstack/ubuntu-server-netboot/release"
)

var (
	ErrMalformedImageIdentity = errors.New("image does not look like an Ubuntu Server live ISO")
	ErrFileNotFound           = errors.New("file not found on Ubuntu Server ISO")
	ErrExtractionFailed       = errors.New("error extracting file from Ubuntu Server ISO")
)

var log *logger.Logger = logger.NewLogger().SetPrefix("[ISO]", logger.BoldGreen)

// Volume IDs look like "Ubuntu-Server 20.04.2 LTS arm64". The point release
// group is dropped from the version label; " LTS" is kept when present.
var volumeIDPattern = regexp.MustCompile(
	`^Ubuntu-Server ([0-9]{2}\.[0-9]{2})(\.[0-9]+)?( LTS)? (.*)$`,
)

// reader is the minimal surface both ISO access strategies provide:
// the external isoinfo tool, or the pure-Go iso9660 fallback when the
// tool is not installed.
type reader interface {
	VolumeID() (string, error)
	List() ([]string, error)
	Read(path string) ([]byte, error)
	Extract(path, dest string) error
}

// ServerLiveISO describes an Ubuntu Server live installer image. The
// identity fields are parsed once in Open and never change.
type ServerLiveISO struct {
	Path         string
	Architecture string
	Version      string
	Codename     string

	rd    reader
	index []string
}

// Open inspects the image's volume descriptor and resolves its identity.
// It fails before any file access if the volume ID is absent, does not
// match the Ubuntu Server grammar, or names a release the distro-info
// table does not know.
func Open(isoPath string) (img *ServerLiveISO, err error) {
	var rd reader
	if _, lookErr := exec.LookPath(isoinfoBin); lookErr == nil {
		rd = &isoinfoReader{isoPath: isoPath}
	} else {
		log.Warningf("%s not found in PATH, using built-in iso9660 reader\n", isoinfoBin)
		rd = &libraryReader{isoPath: isoPath}
	}

	return open(isoPath, rd)
}

func open(isoPath string, rd reader) (img *ServerLiveISO, err error) {
	var volumeID string
	if volumeID, err = rd.VolumeID(); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrMalformedImageIdentity, isoPath, err)
		return
	}

	var m []string
	if m = volumeIDPattern.FindStringSubmatch(volumeID); m == nil {
		err = fmt.Errorf("%w: %s (volume ID %q)", ErrMalformedImageIdentity, isoPath, volumeID)
		return
	}

	img = &ServerLiveISO{
		Path:         isoPath,
		Architecture: m[4],
		Version:      m[1] + m[3],
		rd:           rd,
	}

	var info *release.Info
	if info, err = release.Load(); err != nil {
		img = nil
		return
	}

	if img.Codename, err = info.ResolveCodename(img.Version); err != nil {
		img = nil
		return
	}

	return
}

// HasFile reports whether path is present in the image's file listing.
// Leading slashes are insignificant.
func (img *ServerLiveISO) HasFile(path string) (found bool, err error) {
	if img.index == nil {
		var listing []string
		if listing, err = img.rd.List(); err != nil {
			return
		}

		for _, entry := range listing {
			img.index = append(img.index, strings.TrimLeft(entry, "/"))
		}

		sort.Strings(img.index)
	}

	var target string = strings.TrimLeft(path, "/")
	var i int = sort.SearchStrings(img.index, target)
	found = i < len(img.index) && img.index[i] == target
	return
}

// ExtractFile copies a file out of the image to dest. isoinfo reports
// success extracting a file even if it doesn't exist, so the listing is
// consulted first; only then is the extraction trusted.
func (img *ServerLiveISO) ExtractFile(path, dest string) (err error) {
	var found bool
	if found, err = img.HasFile(path); err != nil {
		return
	}

	if !found {
		err = fmt.Errorf("%w: %s", ErrFileNotFound, path)
		return
	}

	if err = img.rd.Extract(path, dest); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrExtractionFailed, path, err)
	}

	return
}

// ReadFile returns a file's contents as a byte slice.
func (img *ServerLiveISO) ReadFile(path string) (data []byte, err error) {
	return img.rd.Read(path)
}
