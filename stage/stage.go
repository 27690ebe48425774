// Package stage assembles the netboot tree: kernel and initrd pulled off
// the ISO, a rewritten GRUB menu, the signed EFI bootloader from the
// mirror, and the legacy PXE pieces for amd64.
package stage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/z46-dev/go-logger"

	"github.com/serverstack/ubuntu-server-netboot/bootcfg"
	"github.com/serverstack/ubuntu-server-netboot/config"
	"github.com/serverstack/ubuntu-server-netboot/iso"
	"github.com/serverstack/ubuntu-server-netboot/mirror"
)

var ErrMissingLocalDependency = errors.New("missing local boot support file")

// localBootFiles are copied from the host into the staging directory for
// legacy PXE. They come from installable packages, so a miss names the
// package.
var localBootFiles = []struct {
	path func() string
	pkg  string
}{
	{func() string { return config.Config.Syslinux.Pxelinux }, "pxelinux"},
	{func() string { return config.Config.Syslinux.Ldlinux }, "syslinux-common"},
}

// Options carry the user-supplied staging inputs.
type Options struct {
	ImageURL       string // install-time URL of the ISO, always required
	OutDir         string // empty means a fresh temporary directory
	ExtraArgs      string // extra kernel arguments, space separated
	AutoinstallURL string // autoinstall data source, empty to skip
}

// image is what staging needs from an opened ISO.
type image interface {
	ExtractFile(path, dest string) error
	ReadFile(path string) ([]byte, error)
}

// Stager builds one netboot tree from one opened image.
type Stager struct {
	log      *logger.Logger
	img      image
	dl       *mirror.Downloader
	opts     Options
	arch     string
	codename string
}

func New(img *iso.ServerLiveISO, dl *mirror.Downloader, opts Options) *Stager {
	return &Stager{
		log:      logger.NewLogger().SetPrefix("[STAGE]", logger.BoldPurple),
		img:      img,
		dl:       dl,
		opts:     opts,
		arch:     img.Architecture,
		codename: img.Codename,
	}
}

// pendingCleanup removes a partially built tree on failure. The success
// path cancels it so the finished tree survives.
type pendingCleanup struct {
	dir      string
	log      *logger.Logger
	canceled bool
}

func (p *pendingCleanup) Cancel() {
	p.canceled = true
}

func (p *pendingCleanup) Run() {
	if p.canceled {
		return
	}

	p.log.Basicf("Cleaning up %s\n", p.dir)
	_ = os.RemoveAll(p.dir)
}

// Run builds the tree and returns the ubuntu-installer staging directory.
// On any error the directory created by this run is already removed.
func (s *Stager) Run() (stagingDir string, err error) {
	var (
		root     string = s.opts.OutDir
		ownsRoot bool
	)

	if root == "" {
		if root, err = os.MkdirTemp("", "ubuntu-server-netboot-"); err != nil {
			return
		}

		ownsRoot = true
	}

	stagingDir = filepath.Join(root, "ubuntu-installer")
	if err = os.Mkdir(stagingDir, 0755); err != nil {
		err = fmt.Errorf("create staging directory: %w", err)
		return
	}

	var pending *pendingCleanup = &pendingCleanup{dir: stagingDir, log: s.log}
	if ownsRoot {
		pending.dir = root
	}

	defer pending.Run()

	if err = s.dl.DownloadBootnet(s.codename, s.arch, stagingDir); err != nil {
		return
	}

	if err = s.extractBootFiles(stagingDir); err != nil {
		return
	}

	if err = s.writeGrubConfig(stagingDir); err != nil {
		return
	}

	if s.arch == "amd64" {
		if err = s.stagePxelinux(stagingDir); err != nil {
			return
		}
	}

	pending.Cancel()
	s.log.Statusf("Netboot generation complete: %s\n", stagingDir)
	return
}

// extractBootFiles pulls the casper kernel and initrd out of the image.
// The HWE variants are best effort: not every image carries them.
func (s *Stager) extractBootFiles(stagingDir string) (err error) {
	var casperDir string = filepath.Join(stagingDir, "casper")
	if err = os.Mkdir(casperDir, 0755); err != nil {
		return
	}

	for _, f := range []string{"vmlinuz", "initrd"} {
		if err = s.img.ExtractFile("/casper/"+f, filepath.Join(casperDir, f)); err != nil {
			return
		}
	}

	for _, f := range []string{"hwe-vmlinuz", "hwe-initrd"} {
		if err = s.img.ExtractFile("/casper/"+f, filepath.Join(casperDir, f)); err != nil {
			if errors.Is(err, iso.ErrFileNotFound) {
				s.log.Basicf("No HWE boot files found, skipping\n")
				err = nil
				break
			}

			return
		}
	}

	return
}

func (s *Stager) netbootArgs() []string {
	if len(config.Config.Netboot.KernelParams) > 0 {
		return config.Config.Netboot.KernelParams
	}

	return bootcfg.DefaultNetbootArgs
}

// writeGrubConfig rewrites the image's own grub.cfg with the install-time
// kernel parameters and lands it under grub/.
func (s *Stager) writeGrubConfig(stagingDir string) (err error) {
	var seed []byte
	if seed, err = s.img.ReadFile("/boot/grub/grub.cfg"); err != nil {
		return
	}

	var cfg *bootcfg.Config = bootcfg.NewGrubConfig(string(seed))
	bootcfg.SetupKernelParams(cfg, s.netbootArgs(), s.opts.ImageURL, s.opts.AutoinstallURL, s.opts.ExtraArgs)

	var grubDir string = filepath.Join(stagingDir, "grub")
	if err = os.Mkdir(grubDir, 0755); err != nil {
		return
	}

	return os.WriteFile(filepath.Join(grubDir, "grub.cfg"), []byte(cfg.String()), 0644)
}

// stagePxelinux copies the legacy PXE support files into place and writes
// the generated pxelinux configuration. pxelinux.0 can fall back to the
// mirror's installer tree when it is not installed locally; ldlinux.c32
// cannot.
func (s *Stager) stagePxelinux(stagingDir string) (err error) {
	for _, f := range localBootFiles {
		var src string = f.path()
		if err = copyFile(src, filepath.Join(stagingDir, filepath.Base(src))); err != nil {
			if os.IsNotExist(err) && f.pkg == "pxelinux" {
				s.log.Warningf("%s not found locally, fetching pxelinux.0 from the mirror\n", src)
				if err = s.dl.DownloadPxelinux(s.codename, stagingDir); err == nil {
					continue
				}
			}

			err = fmt.Errorf("%w: %s. Try installing %s", ErrMissingLocalDependency, src, f.pkg)
			return
		}
	}

	var pxelinuxDir string = filepath.Join(stagingDir, "pxelinux.cfg")
	if err = os.Mkdir(pxelinuxDir, 0755); err != nil {
		return
	}

	var cfg *bootcfg.Config = bootcfg.NewPxelinuxConfig()
	bootcfg.SetupKernelParams(cfg, s.netbootArgs(), s.opts.ImageURL, s.opts.AutoinstallURL, s.opts.ExtraArgs)

	return os.WriteFile(filepath.Join(pxelinuxDir, "default"), []byte(cfg.String()), 0644)
}

func copyFile(src, dst string) (err error) {
	var in *os.File
	if in, err = os.Open(src); err != nil {
		return
	}

	defer in.Close()

	var out *os.File
	if out, err = os.Create(dst); err != nil {
		return
	}

	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return
	}

	return out.Sync()
}
