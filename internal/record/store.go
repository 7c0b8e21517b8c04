package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/council/internal/errors"
)

// Store persists session records and conversations.
type Store interface {
	// CreateConversation registers a new conversation.
	CreateConversation(ctx context.Context, conv *Conversation) error
	// Save assigns the next monotonic ID to rec and persists it. The record
	// must reference an existing conversation and, when ParentID is set,
	// an existing parent. Saved records are never overwritten.
	Save(ctx context.Context, rec *SessionRecord) error
	// Get loads one record.
	Get(ctx context.Context, id uint64) (*SessionRecord, error)
	// List returns summaries of all records, newest first.
	List(ctx context.Context) ([]Summary, error)
	// Conversation loads one conversation.
	Conversation(ctx context.Context, id string) (*Conversation, error)
	// Conversations returns all conversations, most recently updated first.
	Conversations(ctx context.Context) ([]Conversation, error)
	Close() error
}

const (
	sessionsDir      = "sessions"
	conversationsDir = "conversations"
)

// FileStore keeps one JSON file per record and per conversation.
//
//	<dir>/sessions/<id>.json
//	<dir>/conversations/<uuid>.json
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{sessionsDir, conversationsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.NewPersistenceError("failed to create store directory", err).
				WithOperation("open").
				WithPath(dir)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (fs *FileStore) Dir() string { return fs.dir }

// SessionsDir returns the directory holding record files.
func (fs *FileStore) SessionsDir() string { return filepath.Join(fs.dir, sessionsDir) }

func (fs *FileStore) sessionPath(id uint64) string {
	return filepath.Join(fs.dir, sessionsDir, strconv.FormatUint(id, 10)+".json")
}

func (fs *FileStore) conversationPath(id string) string {
	return filepath.Join(fs.dir, conversationsDir, id+".json")
}

// CreateConversation implements Store.
func (fs *FileStore) CreateConversation(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" || strings.ContainsAny(conv.ID, `/\`) {
		return errors.NewValidationError("conversation id is required").WithField("conversation.id")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("failed to encode conversation", err).WithOperation("create")
	}
	path := fs.conversationPath(conv.ID)
	if err := createExclusive(path, data); err != nil {
		if os.IsExist(err) {
			return errors.NewAlreadyExistsError("conversation", conv.ID)
		}
		return errors.NewPersistenceError("failed to write conversation", err).
			WithOperation("create").
			WithPath(path)
	}
	return nil
}

// Save implements Store.
func (fs *FileStore) Save(_ context.Context, rec *SessionRecord) error {
	if rec == nil {
		return errors.NewValidationError("record is nil")
	}
	if rec.ID != 0 {
		return errors.NewAlreadyExistsError("session", strconv.FormatUint(rec.ID, 10))
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	conv, err := fs.loadConversation(rec.ConversationID)
	if err != nil {
		return err
	}
	if rec.ParentID != 0 {
		if _, err := os.Stat(fs.sessionPath(rec.ParentID)); err != nil {
			return errors.NewNotFoundError("session", strconv.FormatUint(rec.ParentID, 10))
		}
	}

	ids, err := fs.sessionIDs()
	if err != nil {
		return err
	}
	next := uint64(1)
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}

	// Another process may claim an ID between the scan and the write;
	// createExclusive fails in that case and the next ID is tried.
	for attempt := 0; attempt < 100; attempt++ {
		rec.ID = next
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			rec.ID = 0
			return errors.NewPersistenceError("failed to encode record", err).WithOperation("save")
		}
		path := fs.sessionPath(next)
		err = createExclusive(path, data)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			rec.ID = 0
			return errors.NewPersistenceError("failed to write record", err).
				WithOperation("save").
				WithPath(path)
		}
		next++
	}
	if rec.ID != next {
		rec.ID = 0
		return errors.NewPersistenceError("could not allocate a record id", nil).WithOperation("save")
	}

	conv.SessionIDs = append(conv.SessionIDs, rec.ID)
	conv.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("failed to encode conversation", err).WithOperation("save")
	}
	if err := atomicWriteFile(fs.conversationPath(conv.ID), data, 0o644); err != nil {
		return errors.NewPersistenceError("failed to update conversation", err).
			WithRecord(strconv.FormatUint(rec.ID, 10)).
			WithOperation("save").
			WithPath(fs.conversationPath(conv.ID))
	}
	return nil
}

// Get implements Store.
func (fs *FileStore) Get(_ context.Context, id uint64) (*SessionRecord, error) {
	return fs.loadSession(id)
}

func (fs *FileStore) loadSession(id uint64) (*SessionRecord, error) {
	path := fs.sessionPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("session", strconv.FormatUint(id, 10))
		}
		return nil, errors.NewPersistenceError("failed to read record", err).
			WithRecord(strconv.FormatUint(id, 10)).
			WithOperation("load").
			WithPath(path)
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewPersistenceError("failed to decode record", err).
			WithRecord(strconv.FormatUint(id, 10)).
			WithOperation("load").
			WithPath(path)
	}
	return &rec, nil
}

// List implements Store.
func (fs *FileStore) List(_ context.Context) ([]Summary, error) {
	ids, err := fs.sessionIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rec, err := fs.loadSession(ids[i])
		if err != nil {
			// A corrupt file must not hide the rest of the history
			continue
		}
		out = append(out, rec.Summarize())
	}
	return out, nil
}

// sessionIDs returns stored record IDs in ascending order.
func (fs *FileStore) sessionIDs() ([]uint64, error) {
	entries, err := os.ReadDir(fs.SessionsDir())
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list records", err).
			WithOperation("list").
			WithPath(fs.SessionsDir())
	}
	var ids []uint64
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		if id, err := strconv.ParseUint(name, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Conversation implements Store.
func (fs *FileStore) Conversation(_ context.Context, id string) (*Conversation, error) {
	return fs.loadConversation(id)
}

func (fs *FileStore) loadConversation(id string) (*Conversation, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, errors.NewNotFoundError("conversation", id)
	}
	path := fs.conversationPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("conversation", id)
		}
		return nil, errors.NewPersistenceError("failed to read conversation", err).
			WithOperation("load").
			WithPath(path)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.NewPersistenceError("failed to decode conversation", err).
			WithOperation("load").
			WithPath(path)
	}
	return &conv, nil
}

// Conversations implements Store.
func (fs *FileStore) Conversations(_ context.Context) ([]Conversation, error) {
	dir := filepath.Join(fs.dir, conversationsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list conversations", err).
			WithOperation("list").
			WithPath(dir)
	}
	var out []Conversation
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() || strings.HasPrefix(id, ".") {
			continue
		}
		conv, err := fs.loadConversation(id)
		if err != nil {
			continue
		}
		out = append(out, *conv)
	}
	sortConversations(out)
	return out, nil
}

func sortConversations(convs []Conversation) {
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Close implements Store.
func (fs *FileStore) Close() error { return nil }

// createExclusive writes data to path atomically and fails with an
// os.IsExist error if path already exists. The content is written to a
// temp file and hard-linked into place, so readers never see a partial
// file and an existing file is never replaced.
func createExclusive(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), data, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

// atomicWriteFile writes data to a temp file then renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filepath.Dir(path), data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(path)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}
	success = true
	return path, nil
}
