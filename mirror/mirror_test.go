package mirror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/serverstack/ubuntu-server-netboot/config"
)

func TestUEFIArchAbbrev(t *testing.T) {
	for _, tc := range []struct {
		arch string
		want string
	}{
		{"amd64", "x64"},
		{"arm64", "aa64"},
	} {
		got, err := UEFIArchAbbrev(tc.arch)
		if err != nil {
			t.Errorf("UEFIArchAbbrev(%q): %v", tc.arch, err)
		} else if got != tc.want {
			t.Errorf("UEFIArchAbbrev(%q) = %q, want %q", tc.arch, got, tc.want)
		}
	}

	if _, err := UEFIArchAbbrev("s390x"); err == nil {
		t.Error("expected an error for an architecture without a signed GRUB build")
	}
}

func TestSelectMirror(t *testing.T) {
	config.Config.Mirrors.Archive = ""
	config.Config.Mirrors.Ports = ""

	for _, tc := range []struct {
		arch string
		want string
	}{
		{"amd64", defaultArchiveMirror},
		{"i386", defaultArchiveMirror},
		{"arm64", defaultPortsMirror},
		{"ppc64el", defaultPortsMirror},
	} {
		if got := SelectMirror(tc.arch); got != tc.want {
			t.Errorf("SelectMirror(%q) = %q, want %q", tc.arch, got, tc.want)
		}
	}
}

func TestPocketCandidates(t *testing.T) {
	var got []string = PocketCandidates("focal")
	if len(got) != 2 || got[0] != "focal-updates" || got[1] != "focal" {
		t.Errorf("PocketCandidates(focal) = %v", got)
	}
}

// The updates pocket is missing, the release pocket has the file: the
// 404 must drive fallback, not failure.
func TestDownloadBootnetPocketFallback(t *testing.T) {
	var requested []string
	var srv *httptest.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		if r.URL.Path == "/dists/focal/main/uefi/grub2-arm64/current/grubnetaa64.efi.signed" {
			_, _ = w.Write([]byte("efi-blob"))
			return
		}

		http.NotFound(w, r)
	}))
	defer srv.Close()

	config.Config.Mirrors.Ports = srv.URL
	config.Config.Download.RetryMax = 0
	defer func() {
		config.Config.Mirrors.Ports = ""
		config.Config.Download.RetryMax = 0
	}()

	var destdir string = t.TempDir()
	if err := NewDownloader().DownloadBootnet("focal", "arm64", destdir); err != nil {
		t.Fatalf("DownloadBootnet: %v", err)
	}

	if len(requested) != 2 || requested[0] != "/dists/focal-updates/main/uefi/grub2-arm64/current/grubnetaa64.efi.signed" {
		t.Errorf("unexpected request sequence: %v", requested)
	}

	data, err := os.ReadFile(filepath.Join(destdir, "grubnetaa64.efi"))
	if err != nil {
		t.Fatalf("output file: %v", err)
	}

	if string(data) != "efi-blob" {
		t.Errorf("output content %q", data)
	}
}

func TestDownloadBootnetExhausted(t *testing.T) {
	var srv *httptest.Server = httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	config.Config.Mirrors.Archive = srv.URL
	defer func() { config.Config.Mirrors.Archive = "" }()

	err := NewDownloader().DownloadBootnet("focal", "amd64", t.TempDir())
	if !errors.Is(err, ErrMirrorExhausted) {
		t.Errorf("got %v, want ErrMirrorExhausted", err)
	}
}

func TestDownloadPxelinux(t *testing.T) {
	var srv *httptest.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dists/focal-updates/main/installer-amd64/current/images/netboot/ubuntu-installer/amd64/pxelinux.0" {
			_, _ = w.Write([]byte("pxelinux-blob"))
			return
		}

		http.NotFound(w, r)
	}))
	defer srv.Close()

	config.Config.Mirrors.Archive = srv.URL
	defer func() { config.Config.Mirrors.Archive = "" }()

	var destdir string = t.TempDir()
	if err := NewDownloader().DownloadPxelinux("focal", destdir); err != nil {
		t.Fatalf("DownloadPxelinux: %v", err)
	}

	if _, err := os.Stat(filepath.Join(destdir, "pxelinux.0")); err != nil {
		t.Errorf("output file: %v", err)
	}
}

func TestDownloadISO(t *testing.T) {
	var srv *httptest.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("iso-bytes"))
	}))
	defer srv.Close()

	path, remove, err := NewDownloader().DownloadISO(srv.URL + "/x.iso")
	if err != nil {
		t.Fatalf("DownloadISO: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}

	if string(data) != "iso-bytes" {
		t.Errorf("content %q", data)
	}

	remove()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("remove left the file behind")
	}
}
