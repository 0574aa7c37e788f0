// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cockroachdb/errors"
)

// WriteAtomic serializes doc to path using format, writing to path+".tmp"
// first and renaming into place only on a clean write. A short write or I/O
// error leaves the .tmp file behind unrenamed: SerializationFailure, per the
// error handling design, is logged by the caller but the on-disk state
// stays unambiguous because nothing observes the .tmp name as valid.
func WriteAtomic(path string, doc Document, format Format) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "checkpoint: create %s", tmp)
	}
	if err := Encode(f, doc, format); err != nil {
		f.Close()
		return errors.Wrapf(err, "checkpoint: encode %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "checkpoint: sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "checkpoint: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "checkpoint: rename %s to %s", tmp, path)
	}
	return nil
}

// ReadFile decodes the Document stored at path.
func ReadFile(path string, format Format) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: open %s", path)
	}
	defer f.Close()
	return Decode(f, format)
}

var partFileRegexp = regexp.MustCompile(`^part-(\d+)\.ratchet$`)

// PartitionFileName returns the canonical name for the n'th external
// suspend partition file.
func PartitionFileName(n uint64) string {
	return fmt.Sprintf("part-%d.ratchet", n)
}

// ListPartitionFiles returns the part-<N>.ratchet files in folder, sorted
// by their embedded N, the order the external resume path rebuilds local
// hash tables in.
func ListPartitionFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: read dir %s", folder)
	}
	type numbered struct {
		path string
		n    int
	}
	var found []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partFileRegexp.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		found = append(found, numbered{path: filepath.Join(folder, e.Name()), n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
