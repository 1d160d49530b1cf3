package cache

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"strings"
)

// Index file formats.
const (
	FormatGob  = "gob"
	FormatJSON = "json"
)

type codec interface {
	name() string
	encode(w io.Writer, h Header, index map[string]Entry) error
	decode(r io.Reader) (Header, map[string]Entry, error)
}

func codecFor(format string) codec {
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return jsonCodec{}
	}
	return gobCodec{}
}

// gobCodec writes the header and the index as two consecutive gob values.
type gobCodec struct{}

func (gobCodec) name() string { return FormatGob }

func (gobCodec) encode(w io.Writer, h Header, index map[string]Entry) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return err
	}
	return enc.Encode(index)
}

func (gobCodec) decode(r io.Reader) (Header, map[string]Entry, error) {
	dec := gob.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, nil, err
	}
	var index map[string]Entry
	if err := dec.Decode(&index); err != nil && err != io.EOF {
		return Header{}, nil, err
	}
	return h, index, nil
}

type jsonFile struct {
	Header Header           `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// jsonCodec writes one indented object {"header": ..., "index": ...}.
type jsonCodec struct{}

func (jsonCodec) name() string { return FormatJSON }

func (jsonCodec) encode(w io.Writer, h Header, index map[string]Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonFile{Header: h, Index: index})
}

func (jsonCodec) decode(r io.Reader) (Header, map[string]Entry, error) {
	var f jsonFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Header{}, nil, err
	}
	return f.Header, f.Index, nil
}
