package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"prdsync.app/prdsync/internal/diff"
	"prdsync.app/prdsync/internal/model"
)

// snapshotMarker prefixes notes that carry a document snapshot. The rest of
// the marker line is the snapshot metadata as JSON; the note body after the
// first newline is the captured document verbatim.
const snapshotMarker = "<!-- prdsync:snapshot "

// GitLabConfig configures the remote-ticket backend. ProjectID is the
// numeric GitLab project id the items live in.
type GitLabConfig struct {
	Token     string
	BaseURL   string // optional, for self-hosted instances
	ProjectID int64
}

// GitLabStore maps the WorkItemStore contract 1:1 onto GitLab issue and note
// endpoints. Item ids are issue IIDs. "Not found" responses are translated
// into ErrNotFound for lookups; snapshots are stored as marker-prefixed
// notes, so the snapshot capability is supported.
type GitLabStore struct {
	client    *gitlab.Client
	projectID int64
}

func NewGitLabStore(cfg GitLabConfig) (*GitLabStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}
	if cfg.ProjectID == 0 {
		return nil, fmt.Errorf("gitlab project id is required")
	}

	var client *gitlab.Client
	var err error
	if cfg.BaseURL == "" {
		client, err = gitlab.NewClient(cfg.Token)
	} else {
		apiURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v4"
		client, err = gitlab.NewClient(cfg.Token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &GitLabStore{client: client, projectID: cfg.ProjectID}, nil
}

func (s *GitLabStore) Create(ctx context.Context, params CreateParams) (int64, error) {
	labels := gitlab.LabelOptions(params.Labels)
	issue, _, err := s.client.Issues.CreateIssue(
		s.projectID,
		&gitlab.CreateIssueOptions{
			Title:       gitlab.Ptr(params.Title),
			Description: gitlab.Ptr(params.Body),
			Labels:      &labels,
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("creating gitlab issue: %w", err)
	}
	return issue.IID, nil
}

func (s *GitLabStore) Update(ctx context.Context, id int64, patch model.ItemPatch) error {
	opts := &gitlab.UpdateIssueOptions{}
	if patch.Title != nil {
		opts.Title = patch.Title
	}
	if patch.Body != nil {
		opts.Description = patch.Body
	}
	if patch.Labels != nil {
		labels := gitlab.LabelOptions(patch.Labels)
		opts.Labels = &labels
	}
	if patch.State != nil {
		switch *patch.State {
		case model.ItemStateClosed:
			opts.StateEvent = gitlab.Ptr("close")
		case model.ItemStateOpen:
			opts.StateEvent = gitlab.Ptr("reopen")
		}
	}

	_, _, err := s.client.Issues.UpdateIssue(s.projectID, id, opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("updating gitlab issue %d: %w", id, err)
	}
	return nil
}

// List fetches issues without their notes; Get loads the full comment
// sequence for a single item.
func (s *GitLabStore) List(ctx context.Context, filter Filter) ([]model.WorkItem, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if filter.State != "" {
		opts.State = gitlab.Ptr(toGitLabState(filter.State))
	}
	if len(filter.Labels) > 0 {
		labels := gitlab.LabelOptions(filter.Labels)
		opts.Labels = &labels
	}
	if !filter.UpdatedSince.IsZero() {
		opts.UpdatedAfter = gitlab.Ptr(filter.UpdatedSince)
	}

	var items []model.WorkItem
	for {
		issues, resp, err := s.client.Issues.ListProjectIssues(s.projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing gitlab issues: %w", err)
		}
		for _, issue := range issues {
			if issue == nil {
				continue
			}
			items = append(items, *mapIssue(issue, nil))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (s *GitLabStore) Get(ctx context.Context, id int64) (*model.WorkItem, error) {
	issue, resp, err := s.client.Issues.GetIssue(s.projectID, id, nil, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching gitlab issue %d: %w", id, err)
	}

	notes, err := s.listNotes(ctx, id)
	if err != nil {
		return nil, err
	}

	var comments []model.Comment
	for _, note := range notes {
		if note == nil || strings.HasPrefix(note.Body, snapshotMarker) {
			continue
		}
		comments = append(comments, mapNote(note))
	}
	return mapIssue(issue, comments), nil
}

func (s *GitLabStore) AddComment(ctx context.Context, id int64, text string) error {
	_, resp, err := s.client.Notes.CreateIssueNote(
		s.projectID,
		id,
		&gitlab.CreateIssueNoteOptions{Body: gitlab.Ptr(text)},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		if isNotFound(resp) {
			return fmt.Errorf("commenting on gitlab issue %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("commenting on gitlab issue %d: %w", id, err)
	}
	return nil
}

func (s *GitLabStore) Close(ctx context.Context, id int64) error {
	state := model.ItemStateClosed
	return s.Update(ctx, id, model.ItemPatch{State: &state})
}

func (s *GitLabStore) StoreSnapshot(ctx context.Context, id int64, content, documentPath string) error {
	meta := model.DocumentSnapshot{
		ItemID:       id,
		Hash:         diff.Hash(content),
		DocumentPath: documentPath,
		CapturedAt:   time.Now().UTC(),
	}
	header, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding snapshot metadata: %w", err)
	}

	body := snapshotMarker + string(header) + " -->\n" + content
	return s.AddComment(ctx, id, body)
}

func (s *GitLabStore) GetSnapshot(ctx context.Context, id int64) (*model.DocumentSnapshot, error) {
	notes, err := s.listNotes(ctx, id)
	if err != nil {
		return nil, err
	}

	// Walk newest-first; the latest snapshot note is canonical.
	var latest *model.DocumentSnapshot
	var latestAt time.Time
	for _, note := range notes {
		if note == nil || !strings.HasPrefix(note.Body, snapshotMarker) {
			continue
		}
		snapshot, ok := parseSnapshotNote(note.Body)
		if !ok {
			continue
		}
		if latest == nil || snapshot.CapturedAt.After(latestAt) {
			latest = snapshot
			latestAt = snapshot.CapturedAt
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *GitLabStore) SnapshotDiff(ctx context.Context, id int64, newContent string) (string, error) {
	snapshot, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return "", err
	}
	return diff.Render(diff.Diff(snapshot.Content, newContent)), nil
}

func (s *GitLabStore) listNotes(ctx context.Context, id int64) ([]*gitlab.Note, error) {
	opts := &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
		Sort:        gitlab.Ptr("asc"),
		OrderBy:     gitlab.Ptr("created_at"),
	}

	var notes []*gitlab.Note
	for {
		page, resp, err := s.client.Notes.ListIssueNotes(s.projectID, id, opts, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("listing notes for gitlab issue %d: %w", id, err)
		}
		notes = append(notes, page...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return notes, nil
}

func parseSnapshotNote(body string) (*model.DocumentSnapshot, bool) {
	rest := strings.TrimPrefix(body, snapshotMarker)
	end := strings.Index(rest, " -->\n")
	if end < 0 {
		return nil, false
	}

	var snapshot model.DocumentSnapshot
	if err := json.Unmarshal([]byte(rest[:end]), &snapshot); err != nil {
		return nil, false
	}
	snapshot.Content = rest[end+len(" -->\n"):]
	return &snapshot, true
}

func mapIssue(issue *gitlab.Issue, comments []model.Comment) *model.WorkItem {
	item := &model.WorkItem{
		ID:       issue.IID,
		Title:    issue.Title,
		Body:     issue.Description,
		State:    fromGitLabState(issue.State),
		Labels:   issue.Labels,
		Comments: comments,
	}
	if issue.CreatedAt != nil {
		item.CreatedAt = *issue.CreatedAt
	}
	if issue.UpdatedAt != nil {
		item.UpdatedAt = *issue.UpdatedAt
	}
	return item
}

func mapNote(note *gitlab.Note) model.Comment {
	comment := model.Comment{
		Author: note.Author.Username,
		Body:   note.Body,
	}
	if note.CreatedAt != nil {
		comment.CreatedAt = *note.CreatedAt
	}
	return comment
}

func toGitLabState(state model.ItemState) string {
	if state == model.ItemStateClosed {
		return "closed"
	}
	return "opened"
}

func fromGitLabState(state string) model.ItemState {
	if state == "closed" {
		return model.ItemStateClosed
	}
	return model.ItemStateOpen
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
