package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// Bytes serializes the book into a new EPUB archive.
func (b *Book) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes the book as an EPUB archive. The mimetype entry comes
// first and is stored uncompressed; the package document and navigation
// documents are regenerated from the model. Entries carry no timestamps, so
// the same model always produces the same bytes.
func (b *Book) Write(w io.Writer) error {
	if b.PackagePath == "" {
		return fmt.Errorf("cannot write book: %w", ErrPackageNotFound)
	}

	zw := zip.NewWriter(w)
	written := make(map[string]bool)

	if err := writeEntry(zw, mimetypePath, []byte(MediaTypeEPUB), zip.Store); err != nil {
		return err
	}
	written[mimetypePath] = true

	if err := writeEntry(zw, containerPath, renderContainer(b.PackagePath), zip.Deflate); err != nil {
		return err
	}
	written[containerPath] = true

	if err := writeEntry(zw, b.PackagePath, b.renderPackage(), zip.Deflate); err != nil {
		return err
	}
	written[b.PackagePath] = true

	nav, ncx := b.NavItem(), b.NCXItem()
	for _, item := range b.Items {
		zipPath := b.ZipPath(item.Href)
		if written[zipPath] {
			continue
		}
		content := item.Content
		switch item {
		case nav:
			content = b.renderNav(zipPath)
		case ncx:
			content = b.renderNCX(zipPath)
		}
		if err := writeEntry(zw, zipPath, content, zip.Deflate); err != nil {
			return err
		}
		written[zipPath] = true
	}

	for _, res := range b.Resources {
		if written[res.Path] {
			continue
		}
		if err := writeEntry(zw, res.Path, res.Content, zip.Deflate); err != nil {
			return err
		}
		written[res.Path] = true
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, content []byte, method uint16) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func renderContainer(opfPath string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="` + NamespaceContainer + `">
  <rootfiles>
    <rootfile full-path="` + escape(opfPath) + `" media-type="` + MediaTypeOPF + `"/>
  </rootfiles>
</container>
`)
}
