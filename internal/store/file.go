package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"prdsync.app/prdsync/internal/diff"
	"prdsync.app/prdsync/internal/model"
)

const (
	counterFilename = "counter"
	recordFilename  = "record.json"
	bodyFilename    = "body.md"
	commentsDirname = "comments"
	itemsDirname    = "items"
	snapshotsDir    = "snapshots"

	snapshotTimeLayout = "20060102-150405.000000000"
)

// FileStore is the durable file-tree backend: one directory per item holding
// a record file, a body file and a comments directory, plus a shared snapshot
// archive keyed by item id and capture timestamp. It assumes single-writer
// access; the id counter and snapshot appends are not safe under concurrent
// processes.
type FileStore struct {
	root string
}

// itemRecord is the on-disk shape of everything except body and comments.
type itemRecord struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	State       model.ItemState `json:"state"`
	Labels      []string        `json:"labels,omitempty"`
	SnapshotRef *string         `json:"snapshot_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store root directory is required")
	}
	for _, dir := range []string{root, filepath.Join(root, itemsDirname), filepath.Join(root, snapshotsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Create(ctx context.Context, params CreateParams) (int64, error) {
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}

	dir := s.itemDir(id)
	if err := os.MkdirAll(filepath.Join(dir, commentsDirname), 0o755); err != nil {
		return 0, fmt.Errorf("creating item directory: %w", err)
	}

	now := time.Now().UTC()
	record := itemRecord{
		ID:        id,
		Title:     params.Title,
		State:     model.ItemStateOpen,
		Labels:    params.Labels,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.writeRecord(dir, record); err != nil {
		return 0, err
	}
	if err := os.WriteFile(filepath.Join(dir, bodyFilename), []byte(params.Body), 0o644); err != nil {
		return 0, fmt.Errorf("writing item body: %w", err)
	}
	return id, nil
}

func (s *FileStore) Update(ctx context.Context, id int64, patch model.ItemPatch) error {
	dir := s.itemDir(id)
	record, err := s.readRecord(dir)
	if err != nil {
		return fmt.Errorf("updating item %d: %w", id, err)
	}

	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.State != nil {
		record.State = *patch.State
	}
	if patch.Labels != nil {
		record.Labels = patch.Labels
	}
	if patch.Body != nil {
		if err := os.WriteFile(filepath.Join(dir, bodyFilename), []byte(*patch.Body), 0o644); err != nil {
			return fmt.Errorf("writing item body: %w", err)
		}
	}

	record.UpdatedAt = time.Now().UTC()
	return s.writeRecord(dir, record)
}

func (s *FileStore) List(ctx context.Context, filter Filter) ([]model.WorkItem, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, itemsDirname))
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	var items []model.WorkItem
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := parseItemDirname(entry.Name())
		if !ok {
			continue
		}
		item, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if MatchesFilter(item, filter) {
			items = append(items, *item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (s *FileStore) Get(ctx context.Context, id int64) (*model.WorkItem, error) {
	dir := s.itemDir(id)
	record, err := s.readRecord(dir)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filepath.Join(dir, bodyFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading item body: %w", err)
	}

	comments, err := s.readComments(dir)
	if err != nil {
		return nil, err
	}

	return &model.WorkItem{
		ID:          record.ID,
		Title:       record.Title,
		Body:        string(body),
		State:       record.State,
		Labels:      record.Labels,
		Comments:    comments,
		SnapshotRef: record.SnapshotRef,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

func (s *FileStore) AddComment(ctx context.Context, id int64, text string) error {
	dir := s.itemDir(id)
	record, err := s.readRecord(dir)
	if err != nil {
		return fmt.Errorf("commenting on item %d: %w", id, err)
	}

	commentsDir := filepath.Join(dir, commentsDirname)
	entries, err := os.ReadDir(commentsDir)
	if err != nil {
		return fmt.Errorf("reading comments directory: %w", err)
	}

	comment := model.Comment{
		Author:    "prdsync",
		Body:      text,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(comment, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	name := fmt.Sprintf("%06d.json", len(entries)+1)
	if err := os.WriteFile(filepath.Join(commentsDir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing comment: %w", err)
	}

	record.UpdatedAt = comment.CreatedAt
	return s.writeRecord(dir, record)
}

func (s *FileStore) Close(ctx context.Context, id int64) error {
	state := model.ItemStateClosed
	return s.Update(ctx, id, model.ItemPatch{State: &state})
}

func (s *FileStore) StoreSnapshot(ctx context.Context, id int64, content, documentPath string) error {
	dir := s.itemDir(id)
	record, err := s.readRecord(dir)
	if err != nil {
		return fmt.Errorf("storing snapshot for item %d: %w", id, err)
	}

	now := time.Now().UTC()
	snapshot := model.DocumentSnapshot{
		ItemID:       id,
		Hash:         diff.Hash(content),
		Content:      content,
		DocumentPath: documentPath,
		CapturedAt:   now,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	archiveDir := filepath.Join(s.root, snapshotsDir, fmt.Sprintf("item_%d", id))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot archive: %w", err)
	}
	name := now.Format(snapshotTimeLayout) + ".json"
	if err := os.WriteFile(filepath.Join(archiveDir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	ref := filepath.Join(fmt.Sprintf("item_%d", id), name)
	record.SnapshotRef = &ref
	record.UpdatedAt = now
	return s.writeRecord(dir, record)
}

// GetSnapshot returns the canonical (most recent) snapshot for the item, or
// ErrNotFound when none has been stored.
func (s *FileStore) GetSnapshot(ctx context.Context, id int64) (*model.DocumentSnapshot, error) {
	archiveDir := filepath.Join(s.root, snapshotsDir, fmt.Sprintf("item_%d", id))
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading snapshot archive: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}

	// Timestamped filenames sort chronologically.
	sort.Strings(names)
	data, err := os.ReadFile(filepath.Join(archiveDir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot model.DocumentSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *FileStore) SnapshotDiff(ctx context.Context, id int64, newContent string) (string, error) {
	snapshot, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return "", err
	}
	return diff.Render(diff.Diff(snapshot.Content, newContent)), nil
}

// Clear removes every item and snapshot and resets the id counter. CLI-only
// maintenance operation; not part of the WorkItemStore contract.
func (s *FileStore) Clear(ctx context.Context) error {
	for _, dir := range []string{itemsDirname, snapshotsDir} {
		if err := os.RemoveAll(filepath.Join(s.root, dir)); err != nil {
			return fmt.Errorf("clearing %s: %w", dir, err)
		}
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return fmt.Errorf("recreating %s: %w", dir, err)
		}
	}
	if err := os.Remove(filepath.Join(s.root, counterFilename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("resetting counter: %w", err)
	}
	return nil
}

func (s *FileStore) itemDir(id int64) string {
	return filepath.Join(s.root, itemsDirname, fmt.Sprintf("item_%06d", id))
}

func parseItemDirname(name string) (int64, bool) {
	if !strings.HasPrefix(name, "item_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(name, "item_"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *FileStore) nextID() (int64, error) {
	path := filepath.Join(s.root, counterFilename)
	next := int64(1)

	data, err := os.ReadFile(path)
	if err == nil {
		current, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("corrupt id counter: %w", parseErr)
		}
		next = current + 1
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("reading id counter: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.FormatInt(next, 10)), 0o644); err != nil {
		return 0, fmt.Errorf("writing id counter: %w", err)
	}
	return next, nil
}

func (s *FileStore) readRecord(dir string) (itemRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return itemRecord{}, ErrNotFound
		}
		return itemRecord{}, fmt.Errorf("reading item record: %w", err)
	}
	var record itemRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return itemRecord{}, fmt.Errorf("decoding item record: %w", err)
	}
	return record, nil
}

func (s *FileStore) writeRecord(dir string, record itemRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding item record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, recordFilename), data, 0o644); err != nil {
		return fmt.Errorf("writing item record: %w", err)
	}
	return nil
}

func (s *FileStore) readComments(dir string) ([]model.Comment, error) {
	commentsDir := filepath.Join(dir, commentsDirname)
	entries, err := os.ReadDir(commentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading comments directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var comments []model.Comment
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(commentsDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading comment: %w", err)
		}
		var comment model.Comment
		if err := json.Unmarshal(data, &comment); err != nil {
			return nil, fmt.Errorf("decoding comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, nil
}
