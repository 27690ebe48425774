package iso

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"
)

// Primary volume descriptor layout: sector 16, volume identifier at byte
// offset 40, 32 bytes, space padded.
const (
	pvdOffset         = 16 * 2048
	volumeIDOffset    = pvdOffset + 40
	volumeIDFieldSize = 32
)

// libraryReader accesses the image through the pure-Go iso9660 package.
// It only reads the primary descriptor tree, which is enough for the
// paths this tool cares about.
type libraryReader struct {
	isoPath string
}

func (r *libraryReader) VolumeID() (volumeID string, err error) {
	var f *os.File
	if f, err = os.Open(r.isoPath); err != nil {
		return
	}

	defer f.Close()

	var field [volumeIDFieldSize]byte
	if _, err = f.ReadAt(field[:], volumeIDOffset); err != nil {
		err = fmt.Errorf("read volume descriptor: %w", err)
		return
	}

	volumeID = strings.TrimRight(string(field[:]), " ")
	if volumeID == "" {
		err = fmt.Errorf("no volume ID found")
	}

	return
}

func (r *libraryReader) withImage(fn func(*iso9660.Image) error) (err error) {
	var f *os.File
	if f, err = os.Open(r.isoPath); err != nil {
		return
	}

	defer f.Close()

	var img *iso9660.Image
	if img, err = iso9660.OpenImage(f); err != nil {
		return
	}

	return fn(img)
}

func (r *libraryReader) List() (listing []string, err error) {
	err = r.withImage(func(img *iso9660.Image) (err error) {
		var walkFn func(*iso9660.File, string) error
		walkFn = func(file *iso9660.File, currPath string) (err error) {
			listing = append(listing, currPath)

			if file.IsDir() {
				var children []*iso9660.File
				if children, err = file.GetChildren(); err != nil {
					return
				}

				for _, child := range children {
					var name string = child.Name()
					if name == "." || name == ".." {
						continue
					}

					if err = walkFn(child, path.Join(currPath, name)); err != nil {
						return
					}
				}
			}

			return
		}

		var root *iso9660.File
		if root, err = img.RootDir(); err != nil {
			return
		}

		return walkFn(root, "/")
	})

	return
}

func (r *libraryReader) open(img *iso9660.Image, isoPath string) (reader io.Reader, err error) {
	var curr *iso9660.File
	if curr, err = img.RootDir(); err != nil {
		return
	}

	for _, part := range strings.Split(path.Clean(isoPath), "/") {
		if part == "" {
			continue
		}

		var children []*iso9660.File
		if children, err = curr.GetChildren(); err != nil {
			return
		}

		var next *iso9660.File
		for _, child := range children {
			if child.Name() == part {
				next = child
				break
			}
		}

		if next == nil {
			err = fmt.Errorf("path not found in image: %s", isoPath)
			return
		}

		curr = next
	}

	if curr.IsDir() {
		err = fmt.Errorf("path is a directory: %s", isoPath)
		return
	}

	reader = curr.Reader()
	return
}

func (r *libraryReader) Read(isoPath string) (data []byte, err error) {
	err = r.withImage(func(img *iso9660.Image) (err error) {
		var reader io.Reader
		if reader, err = r.open(img, isoPath); err != nil {
			return
		}

		data, err = io.ReadAll(reader)
		return
	})

	return
}

func (r *libraryReader) Extract(isoPath, dest string) (err error) {
	return r.withImage(func(img *iso9660.Image) (err error) {
		var reader io.Reader
		if reader, err = r.open(img, isoPath); err != nil {
			return
		}

		var outf *os.File
		if outf, err = os.Create(dest); err != nil {
			return
		}

		defer outf.Close()

		_, err = io.Copy(outf, reader)
		return
	})
}
