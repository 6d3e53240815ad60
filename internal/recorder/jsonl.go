package recorder

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// DefaultHistoryMax is the default number of records JSONLHistory keeps.
const DefaultHistoryMax = 1000

// JSONLHistory keeps the newest records in memory and, when a path is set,
// appends each one to a JSONL file. The file is compacted back to the
// in-memory window once it grows past twice the limit.
type JSONLHistory struct {
	mu        sync.RWMutex
	records   []SignalRecord
	maxSize   int
	filePath  string
	file      *os.File
	fileLines int
}

// NewJSONLHistory opens the history. An empty path keeps it memory-only.
func NewJSONLHistory(path string, maxSize int) (*JSONLHistory, error) {
	if maxSize <= 0 {
		log.Printf("WARN: invalid history max=%d, using default %d", maxSize, DefaultHistoryMax)
		maxSize = DefaultHistoryMax
	}
	h := &JSONLHistory{
		records:  make([]SignalRecord, 0, maxSize),
		maxSize:  maxSize,
		filePath: path,
	}
	if path == "" {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := h.load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: history load %s: %v", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	h.file = f
	return h, nil
}

func (h *JSONLHistory) load() error {
	f, err := os.Open(h.filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var recs []SignalRecord
	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines++
		var r SignalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	if len(recs) > h.maxSize {
		recs = recs[len(recs)-h.maxSize:]
	}
	h.records = recs
	h.fileLines = lines
	return sc.Err()
}

func (h *JSONLHistory) RecordSignal(r SignalRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)
	if len(h.records) > h.maxSize {
		h.records = h.records[len(h.records)-h.maxSize:]
	}
	if h.file == nil {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := h.file.Write(append(data, '\n')); err != nil {
		return err
	}
	h.fileLines++

	if h.fileLines%100 == 0 && h.fileLines > h.maxSize*2 {
		before := h.fileLines
		if err := h.compact(); err != nil {
			log.Printf("WARN: history compact failed: %v", err)
		} else {
			log.Printf("history compacted: %d -> %d lines", before, h.fileLines)
		}
	}
	return nil
}

func (h *JSONLHistory) QuerySignals(q SignalQuery) ([]SignalRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []SignalRecord
	for i := len(h.records) - 1; i >= 0; i-- {
		r := h.records[i]
		if !q.match(r) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (h *JSONLHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func (h *JSONLHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

// compact rewrites the file with the in-memory window. On failure the old
// file handle stays in use.
func (h *JSONLHistory) compact() error {
	old := h.file
	tmp := h.filePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, r := range h.records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	old.Close()
	if err := os.Rename(tmp, h.filePath); err != nil {
		os.Remove(tmp)
		h.file, _ = os.OpenFile(h.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		return err
	}
	nf, err := os.OpenFile(h.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		h.file = nil
		return err
	}
	h.file = nf
	h.fileLines = len(h.records)
	return nil
}
