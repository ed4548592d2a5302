// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest reads and writes line-delimited study records. Ingestion is
// tolerant: a malformed line is reported and skipped, and the batch
// continues.
// Implements: docs/ARCHITECTURE § Ingestion.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 4 << 20

// Summary holds counts from one ingestion run.
type Summary struct {
	Read    int
	Skipped int
	Blank   int
}

// Total returns the number of non-blank lines seen.
func (s Summary) Total() int {
	return s.Read + s.Skipped
}

// HasSkips reports whether any line was rejected.
func (s Summary) HasSkips() bool {
	return s.Skipped > 0
}

// ReadRecords decodes one StudyCard per line from r. Blank lines are
// ignored; lines that fail to parse, carry no id, or exceed maxLineBytes
// are skipped with a warning written to w. Only I/O failures on r are
// returned as errors.
func ReadRecords(r io.Reader, w io.Writer) ([]types.StudyCard, Summary, error) {
	var (
		cards   []types.StudyCard
		summary Summary
	)

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		raw, tooLong, err := readLine(br, maxLineBytes)
		if err != nil && err != io.EOF {
			return cards, summary, fmt.Errorf("reading records at line %d: %w", lineNo+1, err)
		}
		if err == io.EOF && len(raw) == 0 && !tooLong {
			break
		}
		lineNo++

		if tooLong {
			fmt.Fprintf(w, "skipped line %d: exceeds %d bytes\n", lineNo, maxLineBytes)
			summary.Skipped++
		} else if card, ok := decodeLine(raw, lineNo, w, &summary); ok {
			cards = append(cards, card)
			summary.Read++
		}

		if err == io.EOF {
			break
		}
	}

	return cards, summary, nil
}

// decodeLine parses one non-oversized line, updating summary for blank and
// skipped lines.
func decodeLine(raw []byte, lineNo int, w io.Writer, summary *Summary) (types.StudyCard, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		summary.Blank++
		return types.StudyCard{}, false
	}

	var card types.StudyCard
	if err := json.Unmarshal([]byte(line), &card); err != nil {
		fmt.Fprintf(w, "skipped line %d: parse error: %v\n", lineNo, err)
		summary.Skipped++
		return types.StudyCard{}, false
	}
	if strings.TrimSpace(card.ID) == "" {
		fmt.Fprintf(w, "skipped line %d: missing id\n", lineNo)
		summary.Skipped++
		return types.StudyCard{}, false
	}
	return card, true
}

// readLine returns the next line from br including its newline. A line
// longer than limit is consumed to its end and reported as tooLong with a
// nil slice. err is io.EOF on the final line.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}

// ReadFile opens path and reads its records with ReadRecords.
func ReadFile(path string, w io.Writer) ([]types.StudyCard, Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("opening records %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecords(f, w)
}

// WriteRecords encodes each value as one JSON line.
func WriteRecords[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile writes records as JSONL to path. The data goes to a temporary
// file in the same directory that replaces path only after a successful
// write and close, so a failed write leaves any existing file untouched.
func WriteFile[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := WriteRecords(bw, records); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	committed = true
	return nil
}
