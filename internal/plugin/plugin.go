// Package plugin reads the TES4 header of Bethesda plugin files (.esp,
// .esm, .esl) to recover the flags and master list that drive load-order
// sorting.
package plugin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotPlugin     = errors.New("file is not a valid plugin")
	ErrTruncatedFile = errors.New("plugin file is truncated")
)

// TES4 record flag bits
const (
	flagMaster    uint32 = 0x00000001
	flagLocalized uint32 = 0x00000080
	flagLight     uint32 = 0x00000200
)

// Kind classifies a plugin by its header flags and extension
type Kind string

const (
	KindESM Kind = "ESM"
	KindESP Kind = "ESP"
	KindESL Kind = "ESL"
)

// Header is the parsed TES4 header of one plugin file
type Header struct {
	Filename  string
	Kind      Kind
	IsMaster  bool
	IsLight   bool
	Localized bool
	Masters   []string // master filenames in declared order
}

// IsPluginFile reports whether the filename has a plugin extension
func IsPluginFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".esp", ".esm", ".esl":
		return true
	}
	return false
}

// ReadHeaderFile parses the header of a plugin file on disk
func ReadHeaderFile(path string) (*Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plugin: %w", err)
	}
	defer file.Close()
	return ReadHeader(file, filepath.Base(path))
}

// ReadHeader parses a TES4 record header from r. Only the header record is
// read; the rest of the file is never touched.
func ReadHeader(r io.Reader, filename string) (*Header, error) {
	// Record header layout (Skyrim SE): 4-byte signature, 4-byte data size,
	// 4-byte flags, 4-byte form ID, 4-byte VC info, 2+2 bytes version
	var buf [24]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFile, err)
	}
	if string(buf[0:4]) != "TES4" {
		return nil, fmt.Errorf("%w: expected TES4 record, got %q", ErrNotPlugin, string(buf[0:4]))
	}

	dataSize := binary.LittleEndian.Uint32(buf[4:8])
	flags := binary.LittleEndian.Uint32(buf[8:12])

	h := &Header{
		Filename:  filename,
		IsMaster:  flags&flagMaster != 0,
		IsLight:   flags&flagLight != 0,
		Localized: flags&flagLocalized != 0,
	}
	h.Kind = kindFor(h, filename)

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFile, err)
	}
	if err := parseSubrecords(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// parseSubrecords walks the TES4 subrecords collecting MAST entries
func parseSubrecords(data []byte, h *Header) error {
	reader := bytes.NewReader(data)
	for reader.Len() > 0 {
		var sub [6]byte
		if _, err := io.ReadFull(reader, sub[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading subrecord header: %w", err)
		}
		subType := string(sub[0:4])
		subSize := binary.LittleEndian.Uint16(sub[4:6])

		subData := make([]byte, subSize)
		if _, err := io.ReadFull(reader, subData); err != nil {
			return fmt.Errorf("reading %s subrecord: %w", subType, err)
		}

		if subType == "MAST" {
			if name := readNullString(subData); name != "" {
				h.Masters = append(h.Masters, name)
			}
		}
	}
	return nil
}

func readNullString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}

func kindFor(h *Header, filename string) Kind {
	if h.IsLight {
		return KindESL
	}
	if h.IsMaster {
		return KindESM
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".esm":
		return KindESM
	case ".esl":
		return KindESL
	default:
		return KindESP
	}
}
