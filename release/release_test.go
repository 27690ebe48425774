package release

import (
	"errors"
	"testing"
)

func mustLoadEmbedded(t *testing.T) *Info {
	t.Helper()

	data, err := embeddedCSV.ReadFile("ubuntu.csv")
	if err != nil {
		t.Fatalf("read embedded table: %v", err)
	}

	info, err := parse(data)
	if err != nil {
		t.Fatalf("parse embedded table: %v", err)
	}

	return info
}

// The lookup has to answer for both keys older data sources used: the
// full codename and the series.
func TestVersionTwoKeyLookup(t *testing.T) {
	var info *Info = mustLoadEmbedded(t)

	for _, tc := range []struct {
		name string
		want string
	}{
		{"focal", "20.04 LTS"},
		{"Focal Fossa", "20.04 LTS"},
		{"lunar", "23.04"},
		{"Lunar Lobster", "23.04"},
		{"nonesuch", ""},
	} {
		if got := info.Version(tc.name); got != tc.want {
			t.Errorf("Version(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestResolveCodename(t *testing.T) {
	var info *Info = mustLoadEmbedded(t)

	for _, tc := range []struct {
		label string
		want  string
	}{
		{"20.04 LTS", "focal"},
		{"22.04 LTS", "jammy"},
		{"23.04", "lunar"},
		{"24.04 LTS", "noble"},
	} {
		got, err := info.ResolveCodename(tc.label)
		if err != nil {
			t.Errorf("ResolveCodename(%q): %v", tc.label, err)
		} else if got != tc.want {
			t.Errorf("ResolveCodename(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

// Version matching is exact: "20.04" without the LTS suffix names no
// release, and must not fall through to an empty codename.
func TestResolveCodenameUnsupported(t *testing.T) {
	var info *Info = mustLoadEmbedded(t)

	for _, label := range []string{"20.04", "12.34", ""} {
		got, err := info.ResolveCodename(label)
		if !errors.Is(err, ErrUnsupportedRelease) {
			t.Errorf("ResolveCodename(%q) = (%q, %v), want ErrUnsupportedRelease", label, got, err)
		}
	}
}

// Older and newer vintages of ubuntu.csv carry different column sets.
func TestParseTolerantOfExtraColumns(t *testing.T) {
	var data string = "version,codename,series,created,release,eol,eol-server,eol-esm\n" +
		"20.04 LTS,Focal Fossa,focal,2019-10-17,2020-04-23,2025-04-23,2025-04-23,2030-04-23\n"

	info, err := parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := info.Version("focal"); got != "20.04 LTS" {
		t.Errorf("Version(focal) = %q", got)
	}
}

func TestParseMissingColumn(t *testing.T) {
	if _, err := parse([]byte("version,codename\n20.04 LTS,Focal Fossa\n")); err == nil {
		t.Error("expected an error for a table without a series column")
	}
}
