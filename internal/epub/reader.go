package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxEntrySize caps the decompressed size of a single archive entry.
const maxEntrySize int64 = 256 * 1024 * 1024

var (
	ErrNotZip          = errors.New("input is not a zip archive")
	ErrPackageNotFound = errors.New("package document not found")
	ErrOPFPathNotFound = errors.New("OPF path not found in container.xml")
	ErrFileNotFound    = errors.New("file not found in archive")
	ErrUnsafePath      = errors.New("unsafe archive entry path")
	ErrEntryTooLarge   = errors.New("archive entry too large")
)

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// archive indexes the entries of a zip by normalized path.
type archive struct {
	entries []*zip.File
	files   map[string]*zip.File
	limit   int64
}

// Parse reads an EPUB container from memory.
func Parse(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if !isZipLike(data) {
			return nil, fmt.Errorf("%w (detected %s)", ErrNotZip, mimetype.Detect(data).String())
		}
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return parseArchive(newArchive(zr, maxEntrySize))
}

func isZipLike(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

func newArchive(zr *zip.Reader, limit int64) *archive {
	a := &archive{
		files: make(map[string]*zip.File, len(zr.File)),
		limit: limit,
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := normalizePath(f.Name)
		if _, dup := a.files[name]; dup {
			continue
		}
		a.files[name] = f
		a.entries = append(a.entries, f)
	}
	return a
}

func parseArchive(a *archive) (*Book, error) {
	opfPath, err := a.findPackage()
	if err != nil {
		return nil, err
	}

	opfData, err := a.readFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPF: %w", err)
	}

	book, err := parsePackage(opfData)
	if err != nil {
		return nil, err
	}
	book.PackagePath = opfPath

	claimed := map[string]bool{
		mimetypePath:  true,
		containerPath: true,
		opfPath:       true,
	}
	for _, item := range book.Items {
		zipPath := book.ZipPath(item.Href)
		f := a.lookup(zipPath)
		if f == nil {
			return nil, fmt.Errorf("manifest item %q (%s): %w", item.ID, zipPath, ErrFileNotFound)
		}
		item.Content, err = a.read(f)
		if err != nil {
			return nil, err
		}
		claimed[normalizePath(f.Name)] = true
	}

	for _, f := range a.entries {
		name := normalizePath(f.Name)
		if claimed[name] {
			continue
		}
		content, err := a.read(f)
		if err != nil {
			return nil, err
		}
		book.Resources = append(book.Resources, &Resource{Path: name, Content: content})
	}

	if err := book.loadTOC(); err != nil {
		return nil, err
	}

	return book, nil
}

// findPackage resolves the package document path from container.xml,
// falling back to the first .opf entry in the archive.
func (a *archive) findPackage() (string, error) {
	if f := a.lookup(containerPath); f != nil {
		content, err := a.read(f)
		if err != nil {
			return "", err
		}
		opfPath, err := parseContainer(content)
		if err == nil {
			opf := a.lookup(opfPath)
			if opf == nil {
				return "", fmt.Errorf("%w: %s", ErrPackageNotFound, opfPath)
			}
			return normalizePath(opf.Name), nil
		}
		if !errors.Is(err, ErrOPFPathNotFound) {
			return "", err
		}
	}

	for _, f := range a.entries {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return normalizePath(f.Name), nil
		}
	}
	return "", ErrPackageNotFound
}

// parseContainer extracts the OPF path from container.xml content.
func parseContainer(content []byte) (string, error) {
	var c container
	if err := xml.Unmarshal(stripBOM(content), &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if rf.MediaType == MediaTypeOPF || rf.MediaType == "" {
			return normalizePath(fullPath), nil
		}
	}

	// If no media-type match, use the first one
	for _, rf := range c.Rootfiles.Rootfile {
		if fullPath := strings.TrimSpace(rf.FullPath); fullPath != "" {
			return normalizePath(fullPath), nil
		}
	}

	return "", ErrOPFPathNotFound
}

// lookup finds an entry by exact path, then case-insensitively.
func (a *archive) lookup(name string) *zip.File {
	name = normalizePath(name)
	if f, ok := a.files[name]; ok {
		return f
	}
	lower := strings.ToLower(name)
	for _, f := range a.entries {
		if strings.ToLower(normalizePath(f.Name)) == lower {
			return f
		}
	}
	return nil
}

func (a *archive) readFile(name string) ([]byte, error) {
	f := a.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return a.read(f)
}

func (a *archive) read(f *zip.File) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	if f.UncompressedSize64 > uint64(a.limit) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit.
	data, err := io.ReadAll(io.LimitReader(rc, a.limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", f.Name, err)
	}
	if int64(len(data)) > a.limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrEntryTooLarge, f.Name, a.limit)
	}
	return data, nil
}

// normalizePath normalizes archive paths (removes ./ prefix)
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "./")
}

func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
