// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package imagewriter

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Meta is the imagerec_meta.xml sidecar content recorded at the
// archive root (spec.md §6): source kind, binning, ROI, and start
// timestamp.
type Meta struct {
	XMLName        xml.Name `xml:"imagerecMeta"`
	SourceKind     string   `xml:"sourceKind"`
	Binning        int      `xml:"binning"`
	ROI            string   `xml:"roi"`
	StartTimestamp int64    `xml:"startTimestamp"`
}

// WriteMeta writes imagerec_meta.xml at the archive root. Only called
// when the metadata-snapshots-enabled config flag is set (spec.md §6).
func WriteMeta(dir string, m Meta) error {
	f, err := os.Create(filepath.Join(dir, "imagerec_meta.xml"))
	if err != nil {
		return fmt.Errorf("imagewriter: meta: %w", err)
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(&m)
}
