package audit

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/sha3"
)

// GenesisHash is the hash_prev value of the first event in a log.
const GenesisHash = "sha3-256:genesis"

// FileWriter appends audit events to a JSON-lines file with a SHA3-256
// hash chain.
type FileWriter struct {
	mu       sync.Mutex
	f        *os.File
	lastHash string
}

var _ Writer = (*FileWriter)(nil)

// NewFileWriter opens (or creates) the audit log at path.
// If the file already contains events, the chain continues from the last one.
func NewFileWriter(path string) (*FileWriter, error) {
	last, err := lastHashInFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &FileWriter{f: f, lastHash: last}, nil
}

func (w *FileWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid audit event: %w", err)
	}

	event.HashPrev = w.lastHash

	canonical, err := event.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}
	event.Hash = hashChain(canonical)

	line, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	w.lastHash = event.Hash
	return nil
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *FileWriter) LastHash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastHash
}

func hashChain(canonical []byte) string {
	sum := sha3.Sum256(canonical)
	return "sha3-256:" + hex.EncodeToString(sum[:])
}

// lastHashInFile returns the hash of the final event in an existing log,
// or GenesisHash for a missing/empty file.
func lastHashInFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	last := GenesisHash
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return "", fmt.Errorf("corrupt audit log entry: %w", err)
		}
		last = e.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to scan audit log: %w", err)
	}
	return last, nil
}

// VerifyChain re-reads a log file and checks every event against the hash
// chain. Returns the number of verified events.
func VerifyChain(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	prev := GenesisHash
	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return count, fmt.Errorf("corrupt audit log entry %d: %w", count, err)
		}
		if e.HashPrev != prev {
			return count, fmt.Errorf("audit chain broken at entry %d: hash_prev mismatch", count)
		}

		canonical, err := e.CanonicalJSON()
		if err != nil {
			return count, err
		}
		if hashChain(canonical) != e.Hash {
			return count, fmt.Errorf("audit chain broken at entry %d: hash mismatch", count)
		}

		prev = e.Hash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to scan audit log: %w", err)
	}
	return count, nil
}
