package coco

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

// ArchiveEntry is where CVAT's COCO 1.0 importer looks for instances
const ArchiveEntry = "annotations/instances_default.json"

// Archive packs the dataset as a COCO 1.0 zip archive
func Archive(d *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	w, err := zw.Create(ArchiveEntry)
	if err == nil {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		err = enc.Encode(d)
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		return nil, errors.Newf("failed to build annotation archive: %w", err).
			Category(errors.CategoryProcessing).
			Component("coco").
			Build()
	}
	return buf.Bytes(), nil
}

// ReadArchive extracts the dataset from a COCO 1.0 archive
func ReadArchive(data []byte) (*Dataset, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Newf("failed to open annotation archive: %w", err).
			Category(errors.CategoryFileParsing).
			Component("coco").
			Build()
	}
	f, err := zr.Open(ArchiveEntry)
	if err != nil {
		return nil, errors.Newf("annotation archive has no %s: %w", ArchiveEntry, err).
			Category(errors.CategoryFileParsing).
			Component("coco").
			Build()
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
