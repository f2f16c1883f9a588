package sysinfo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/joho/godotenv"
)

// OSRelease holds the fields of /etc/os-release used by tuning rules.
type OSRelease struct {
	ID         string
	Name       string
	VersionID  string
	PrettyName string
}

// ReadOSRelease parses an os-release(5) file.
func ReadOSRelease(path string) (OSRelease, error) {
	fields, err := godotenv.Read(path)
	if err != nil {
		return OSRelease{}, fmt.Errorf("read %s: %w", path, err)
	}
	return OSRelease{
		ID:         strings.ToLower(fields["ID"]),
		Name:       fields["NAME"],
		VersionID:  fields["VERSION_ID"],
		PrettyName: fields["PRETTY_NAME"],
	}, nil
}

// Is reports whether the distribution matches id (e.g. "centos") by ID or NAME prefix.
func (r OSRelease) Is(id string) bool {
	id = strings.ToLower(id)
	return r.ID == id || strings.HasPrefix(strings.ToLower(r.Name), id)
}

// MajorVersion returns the leading component of VERSION_ID, or 0 when unknown.
func (r OSRelease) MajorVersion() int {
	return majorOf(r.VersionID)
}

func (r OSRelease) String() string {
	if r.PrettyName != "" {
		return r.PrettyName
	}
	return strings.TrimSpace(r.Name + " " + r.VersionID)
}

var leadingVersion = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// ParseVersion extracts the numeric prefix of a version string such as a kernel
// release ("5.14.0-427.el9.x86_64" yields 5.14.0).
func ParseVersion(raw string) (*version.Version, error) {
	prefix := leadingVersion.FindString(strings.TrimSpace(raw))
	if prefix == "" {
		return nil, fmt.Errorf("no version number in %q", raw)
	}
	return version.NewVersion(prefix)
}

func majorOf(raw string) int {
	v, err := ParseVersion(raw)
	if err != nil {
		return 0
	}
	segments := v.Segments()
	if len(segments) == 0 {
		return 0
	}
	return segments[0]
}
