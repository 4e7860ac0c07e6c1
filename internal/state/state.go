package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrStorage indicates the state root is unwritable. Callers treat the
// affected write as lost; there is no automatic retry.
var ErrStorage = errors.New("state storage unavailable")

// Version is the state layout version written into identity records.
const Version = "1"

// Identity is the per-root identity record. It is created once when a root
// is first opened and is stable across reopens.
type Identity struct {
	// ID uniquely identifies this learning-state root.
	ID string `json:"id"`

	// CreatedAt is when the root was first initialized.
	CreatedAt time.Time `json:"created_at"`

	// Hostname is the machine the root was created on.
	Hostname string `json:"hostname"`

	// Version is the state layout version.
	Version string `json:"version"`
}

// StateRoot bundles every persisted location of the learning state under a
// single root directory.
type StateRoot struct {
	// Root is the base directory.
	Root string

	// EventLogPath is the live append-only event log.
	EventLogPath string

	// ArchiveDir holds sealed event log segments.
	ArchiveDir string

	// PatternsDir holds one pattern store document per mining category.
	PatternsDir string

	// ArtifactsDir is the base directory for generated artifacts. Each
	// artifact kind gets its own subdirectory (skills/, commands/, agents/).
	ArtifactsDir string

	// LedgerPath is the append-only promotion ledger.
	LedgerPath string

	// CheckpointsDir holds checkpoint snapshots and the latest alias.
	CheckpointsDir string

	identityPath string
	identity     *Identity
}

// DefaultRoot returns the default state root location,
// ~/.local/share/instinctd.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "instinctd"), nil
}

// Open initializes the state layout under root, creating directories as
// needed, and loads or creates the identity record.
func Open(root string) (*StateRoot, error) {
	if root == "" {
		var err error
		root, err = DefaultRoot()
		if err != nil {
			return nil, err
		}
	}

	s := &StateRoot{
		Root:           root,
		EventLogPath:   filepath.Join(root, "events.jsonl"),
		ArchiveDir:     filepath.Join(root, "archive"),
		PatternsDir:    filepath.Join(root, "patterns"),
		ArtifactsDir:   filepath.Join(root, "artifacts"),
		LedgerPath:     filepath.Join(root, "promotions.jsonl"),
		CheckpointsDir: filepath.Join(root, "checkpoints"),
		identityPath:   filepath.Join(root, "identity.json"),
	}

	dirs := []string{
		root,
		s.ArchiveDir,
		s.PatternsDir,
		s.ArtifactsDir,
		s.CheckpointsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: failed to create %s: %v", ErrStorage, dir, err)
		}
	}

	identity, err := loadOrCreateIdentity(s.identityPath)
	if err != nil {
		return nil, err
	}
	s.identity = identity

	return s, nil
}

// Identity returns the identity record for this root.
func (s *StateRoot) Identity() Identity {
	return *s.identity
}

// ArtifactDir returns the directory for the given artifact kind, creating it
// if needed.
func (s *StateRoot) ArtifactDir(kind string) (string, error) {
	dir := filepath.Join(s.ArtifactsDir, kind+"s")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: failed to create %s: %v", ErrStorage, dir, err)
	}
	return dir, nil
}

func loadOrCreateIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if jsonErr := json.Unmarshal(data, &id); jsonErr == nil && id.ID != "" {
			return &id, nil
		}
		// Corrupt identity file: fall through and rewrite. The old content
		// is unrecoverable either way.
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read identity: %v", ErrStorage, err)
	}

	hostname, _ := os.Hostname()
	id := &Identity{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Hostname:  hostname,
		Version:   Version,
	}

	data, err = json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: failed to write identity: %v", ErrStorage, err)
	}

	return id, nil
}
