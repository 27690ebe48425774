package release

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SystemCSVPath is where distro-info-data installs the Ubuntu release table.
// When it is missing (non-Debian hosts, minimal containers), the embedded
// copy below is used instead.
const SystemCSVPath = "/usr/share/distro-info/ubuntu.csv"

//go:embed ubuntu.csv
var embeddedCSV embed.FS

var ErrUnsupportedRelease = errors.New("no known Ubuntu release matches this version")

// Release is one row of the distro-info table.
type Release struct {
	Version  string // e.g. "20.04 LTS"
	Codename string // e.g. "Focal Fossa"
	Series   string // e.g. "focal"
	Created  string
	Released string
	EOL      string
}

// Info holds the parsed release table.
type Info struct {
	releases []Release
}

// Load reads the system distro-info table if present, otherwise the
// embedded copy. The embedded copy is a snapshot; distro-info-data on the
// host always wins so newly published releases resolve without a rebuild.
func Load() (info *Info, err error) {
	var data []byte

	if data, err = os.ReadFile(SystemCSVPath); err != nil {
		if data, err = embeddedCSV.ReadFile("ubuntu.csv"); err != nil {
			err = fmt.Errorf("load embedded release table: %w", err)
			return
		}
	}

	return parse(data)
}

func parse(data []byte) (info *Info, err error) {
	var (
		reader  *csv.Reader = csv.NewReader(bytes.NewReader(data))
		header  []string
		columns map[string]int = make(map[string]int)
	)

	// distro-info-data has grown columns over the years (eol-server,
	// eol-esm); index by header name so any vintage of the file parses.
	reader.FieldsPerRecord = -1

	if header, err = reader.Read(); err != nil {
		err = fmt.Errorf("read release table header: %w", err)
		return
	}

	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{"version", "codename", "series"} {
		if _, ok := columns[required]; !ok {
			err = fmt.Errorf("release table is missing the %q column", required)
			return
		}
	}

	var field = func(record []string, name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	info = &Info{}
	for {
		var record []string
		if record, err = reader.Read(); err == io.EOF {
			err = nil
			break
		} else if err != nil {
			err = fmt.Errorf("read release table: %w", err)
			return
		}

		info.releases = append(info.releases, Release{
			Version:  field(record, "version"),
			Codename: field(record, "codename"),
			Series:   field(record, "series"),
			Created:  field(record, "created"),
			Released: field(record, "release"),
			EOL:      field(record, "eol"),
		})
	}

	return
}

// Releases returns every known release, oldest first.
func (info *Info) Releases() []Release {
	return info.releases
}

// Version maps a codename or series to its version string. Older
// distro-info data sources keyed releases by full codename rather than
// series, so both are accepted. Returns "" when nothing matches.
func (info *Info) Version(name string) string {
	for _, r := range info.releases {
		if name == r.Codename || name == r.Series {
			return r.Version
		}
	}

	return ""
}

// ResolveCodename finds the series whose version string equals versionLabel
// exactly (e.g. "20.04 LTS" -> "focal"). Versions are unique, so scan order
// does not matter; the first match wins. An unmatched label is an error:
// proceeding with an empty series would only surface later as mirror 404s.
func (info *Info) ResolveCodename(versionLabel string) (series string, err error) {
	for _, r := range info.releases {
		if versionLabel == info.Version(r.Series) {
			series = r.Series
			return
		}
	}

	err = fmt.Errorf("%w: %q", ErrUnsupportedRelease, versionLabel)
	return
}
