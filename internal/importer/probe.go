package importer

import (
	"path/filepath"
	"strings"

	"github.com/tomearr/tomearr/pkg/release"
)

// Quality describes the imported file's audio characteristics.
type Quality struct {
	Format      string
	BitrateKbps int
	Channels    int
}

// Prober inspects a finished file. Implementations backed by a real
// media probe can replace the default filename-based one.
type Prober interface {
	DetectQuality(path string) (Quality, error)
}

// NameProber infers quality from the file name alone. It never fails;
// fields it cannot determine stay zero.
type NameProber struct{}

func (NameProber) DetectQuality(path string) (Quality, error) {
	q := Quality{
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}
	info := release.Parse(filepath.Base(path))
	if info.Format != "" {
		q.Format = info.Format
	}
	q.BitrateKbps = info.Bitrate
	return q, nil
}
