// Package metadata extracts package metadata from Python distribution files.
//
// The devpi upload endpoint needs the package name, version, and summary of
// the file being uploaded. This package reads them from the archive itself:
// wheels carry a *.dist-info/METADATA file, sdists a PKG-INFO file, and eggs
// an EGG-INFO/PKG-INFO file. All three are RFC 822 style header blocks.
//
// The extractor reads through an afero filesystem so callers (and tests) can
// supply in-memory files.
package metadata

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/spf13/afero"
)

// Metadata holds the fields the upload endpoint requires.
type Metadata struct {
	Name    string // Distribution name (e.g., "requests")
	Version string // Version string (e.g., "2.31.0")
	Summary string // One-line description (may be empty)
}

// Extractor produces Metadata from a distribution file on disk.
type Extractor interface {
	Extract(path string) (*Metadata, error)
}

// Supported file extensions for upload, in sniffing order.
var supportedExtensions = []string{".whl", ".tar.gz", ".tgz", ".egg"}

// Supported reports whether filename has a distribution extension the
// extractor understands.
func Supported(filename string) bool {
	for _, ext := range supportedExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// SupportedExtensions returns the list of recognized file extensions.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}

// FileExtractor reads distribution archives from an afero filesystem.
type FileExtractor struct {
	fs afero.Fs
}

// NewExtractor creates a FileExtractor backed by fsys.
// Pass nil to read from the OS filesystem.
func NewExtractor(fsys afero.Fs) *FileExtractor {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileExtractor{fs: fsys}
}

// Extract reads the metadata headers from the archive at path.
// The archive format is chosen by file extension; unsupported extensions
// return an error without touching the file.
func (e *FileExtractor) Extract(path string) (*Metadata, error) {
	switch {
	case strings.HasSuffix(path, ".whl"):
		return e.fromZip(path, isWheelMetadata)
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return e.fromTarball(path)
	case strings.HasSuffix(path, ".egg"):
		return e.fromZip(path, isEggMetadata)
	default:
		return nil, fmt.Errorf("unsupported package file type: %s", path)
	}
}

func isWheelMetadata(name string) bool {
	return strings.HasSuffix(name, ".dist-info/METADATA")
}

func isEggMetadata(name string) bool {
	return strings.HasSuffix(name, "EGG-INFO/PKG-INFO")
}

func (e *FileExtractor) fromZip(path string, match func(string) bool) (*Metadata, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}

	for _, f := range zr.File {
		if !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in %s: %w", f.Name, path, err)
		}
		defer rc.Close()
		return parseHeaders(rc)
	}
	return nil, fmt.Errorf("no metadata file found in %s", path)
}

func (e *FileExtractor) fromTarball(path string) (*Metadata, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive %s: %w", path, err)
		}
		// Sdists place PKG-INFO at the top of the source directory.
		if strings.HasSuffix(hdr.Name, "/PKG-INFO") || hdr.Name == "PKG-INFO" {
			return parseHeaders(tr)
		}
	}
	return nil, fmt.Errorf("no PKG-INFO found in %s", path)
}

// parseHeaders reads an RFC 822 style metadata block.
// METADATA and PKG-INFO files may carry a long description after the header
// block; everything past the first blank line is ignored.
func parseHeaders(r io.Reader) (*Metadata, error) {
	tp := textproto.NewReader(bufio.NewReader(r))
	hdr, err := tp.ReadMIMEHeader()
	// ReadMIMEHeader returns io.EOF alongside the headers when the block is
	// not terminated by a blank line; the headers are still usable.
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse metadata headers: %w", err)
	}

	return &Metadata{
		Name:    hdr.Get("Name"),
		Version: hdr.Get("Version"),
		Summary: hdr.Get("Summary"),
	}, nil
}
