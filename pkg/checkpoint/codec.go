// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package checkpoint implements the "ratchet" suspend/resume protocol: a
// self-describing document format for build-side state, and the controller
// that decides when a running join should serialize itself and exit.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/cockroachdb/errors"
)

// Format selects the wire encoding for a checkpoint document. The source
// system picked this at compile time (RATCHET_SERDE_FORMAT); here it is a
// runtime choice on the CheckpointController.
type Format int

const (
	// FormatJSON is self-describing text, easy to inspect by hand.
	FormatJSON Format = iota
	// FormatBinary is a compact self-describing binary encoding. No CBOR
	// library appears anywhere in this codebase's dependency graph, so
	// this falls back to encoding/gob: it is self-describing enough for
	// Document's map[string]interface{} shape and needs no schema shared
	// out of band, which is the property CBOR was chosen for upstream.
	FormatBinary
)

// Document is the self-describing key/value payload written to a
// checkpoint file: pipeline_complete, column_size, build_size, and one
// join_key_<c>_<col> / build_chunk_<c>_<col> entry per chunk and column,
// among others (see colexecjoin's documentFromLocals for the full layout).
type Document map[string]interface{}

// ColumnGroup is the value stored for each build_chunk_<c>_<col> /
// join_key_<c>_<col> key: a type tag, the dense column data, and the null bitmap words (empty
// when the column has no NULLs, matching Nulls.MaybeHasNulls's fast path).
type ColumnGroup struct {
	Type  int         `json:"type"`
	Data  interface{} `json:"data"`
	Nulls []uint64    `json:"nulls,omitempty"`
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode writes doc to w using the requested format.
func Encode(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		return enc.Encode(doc)
	case FormatBinary:
		enc := gob.NewEncoder(w)
		return enc.Encode(doc)
	default:
		return errors.Newf("checkpoint: unknown format %d", format)
	}
}

// Decode reads a Document from r using the requested format.
func Decode(r io.Reader, format Format) (Document, error) {
	switch format {
	case FormatJSON:
		var doc Document
		dec := json.NewDecoder(r)
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "checkpoint: decode json")
		}
		return doc, nil
	case FormatBinary:
		var doc Document
		dec := gob.NewDecoder(r)
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "checkpoint: decode binary")
		}
		return doc, nil
	default:
		return nil, errors.Newf("checkpoint: unknown format %d", format)
	}
}

// EncodeToBytes is a convenience wrapper for callers that need the encoded
// size before committing to a write, e.g. for logging estimated persistence
// size the way the source system did.
func EncodeToBytes(doc Document, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func init() {
	gob.Register(ColumnGroup{})
	gob.Register([]bool{})
	gob.Register([]int8{})
	gob.Register([]int16{})
	gob.Register([]int32{})
	gob.Register([]int64{})
	gob.Register([]uint8{})
	gob.Register([]uint16{})
	gob.Register([]uint32{})
	gob.Register([]uint64{})
	gob.Register([]float64{})
	gob.Register([]string{})
}
