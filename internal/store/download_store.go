package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"peerchat/internal/domain"
)

// ErrCommitted is returned by Write after the pending file was published or
// discarded.
var ErrCommitted = errors.New("pending file already finished")

// DownloadStore writes received files under one directory.
type DownloadStore struct {
	dir string
	mu  sync.Mutex
}

func NewDownloadStore(dir string) *DownloadStore { return &DownloadStore{dir: dir} }

// Dir is the download directory.
func (s *DownloadStore) Dir() string { return s.dir }

// Create starts a pending file. The directory is created on first use.
func (s *DownloadStore) Create(name string) (domain.PendingFile, error) {
	if err := ensureDir(s.dir); err != nil {
		return nil, err
	}
	base := safeName(name)
	f, err := createTemp(s.dir)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", base, err)
	}
	return &pendingFile{store: s, base: base, f: f}, nil
}

type pendingFile struct {
	store *DownloadStore
	base  string
	f     *os.File
	done  bool
}

func (p *pendingFile) Write(b []byte) (int, error) {
	if p.done {
		return 0, ErrCommitted
	}
	return p.f.Write(b)
}

func (p *pendingFile) Commit() (string, error) {
	if p.done {
		return "", ErrCommitted
	}
	p.done = true
	tmp := p.f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	if err := p.f.Sync(); err != nil {
		_ = p.f.Close()
		return "", err
	}
	if err := p.f.Close(); err != nil {
		return "", err
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	path, err := uniquePath(p.store.dir, p.base)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func (p *pendingFile) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	_ = p.f.Close()
	return os.Remove(p.f.Name())
}

// Compile-time assertion that DownloadStore implements domain.FileStore.
var _ domain.FileStore = (*DownloadStore)(nil)
