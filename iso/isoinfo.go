package iso

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// isoinfoBin is the external ISO9660 reader tool. genisoimage and cdrkit
// both ship a compatible isoinfo.
var isoinfoBin string = "isoinfo"

const volumeIDLabel = "Volume id: "

// SetReaderTool overrides the external reader binary name, normally from
// the loaded configuration.
func SetReaderTool(bin string) {
	if strings.TrimSpace(bin) != "" {
		isoinfoBin = bin
	}
}

// isoinfoReader accesses the image through the external isoinfo tool.
type isoinfoReader struct {
	isoPath string
}

// VolumeID runs the descriptor dump mode and returns the value of the
// first "Volume id:" line.
func (r *isoinfoReader) VolumeID() (volumeID string, err error) {
	var output []byte
	if output, err = exec.Command(isoinfoBin, "-d", "-i", r.isoPath).Output(); err != nil {
		err = fmt.Errorf("%s -d: %w", isoinfoBin, err)
		return
	}

	var scanner *bufio.Scanner = bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		var line string = scanner.Text()
		if strings.HasPrefix(line, volumeIDLabel) {
			volumeID = line[len(volumeIDLabel):]
			return
		}
	}

	err = errors.New("no volume ID found")
	return
}

// List returns every path on the image, one per line as isoinfo prints
// them (absolute, Joliet names).
func (r *isoinfoReader) List() (listing []string, err error) {
	var output []byte
	if output, err = exec.Command(isoinfoBin, "-J", "-f", "-i", r.isoPath).Output(); err != nil {
		err = fmt.Errorf("%s -f: %w", isoinfoBin, err)
		return
	}

	var scanner *bufio.Scanner = bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		var line string = strings.TrimSpace(scanner.Text())
		if line != "" {
			listing = append(listing, line)
		}
	}

	err = scanner.Err()
	return
}

// Read captures a file's contents from the extraction mode's stdout.
// Output() checks the child's exit status for us.
func (r *isoinfoReader) Read(path string) (data []byte, err error) {
	if data, err = exec.Command(isoinfoBin, "-J", "-i", r.isoPath, "-x", path).Output(); err != nil {
		err = fmt.Errorf("%s -x %s: %w", isoinfoBin, path, err)
	}

	return
}

// Extract streams the extraction mode's stdout straight to dest. The exit
// status must be checked explicitly: a truncated or empty write looks fine
// if only the stream is inspected.
func (r *isoinfoReader) Extract(path, dest string) (err error) {
	var outf *os.File
	if outf, err = os.Create(dest); err != nil {
		return
	}

	defer outf.Close()

	var cmd *exec.Cmd = exec.Command(isoinfoBin, "-J", "-i", r.isoPath, "-x", path)
	cmd.Stdout = outf

	if err = cmd.Run(); err != nil {
		err = fmt.Errorf("%s -x %s: %w", isoinfoBin, path, err)
	}

	return
}
