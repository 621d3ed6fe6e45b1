package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"timeline/api/internal/auth"
	"timeline/api/internal/authpw"
	"timeline/api/internal/config"
	"timeline/api/internal/progress"
	"timeline/api/internal/store"
)

// fakeStore is an in-memory stand-in for the Postgres layer, covering
// the dataStore, sessionStore, and progress.Source surfaces.
type fakeStore struct {
	users       map[string]store.User
	projects    map[int64]store.Project
	memberships map[string]string
	timelines   []store.Timeline
	refresh     map[string]string
	ratios      map[int64]int
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]store.User),
		projects:    make(map[int64]store.Project),
		memberships: make(map[string]string),
		refresh:     make(map[string]string),
		ratios:      make(map[int64]int),
	}
}

func (f *fakeStore) GetUserByName(_ context.Context, name string) (store.User, error) {
	for _, user := range f.users {
		if user.Name == name {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID int64) (store.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (f *fakeStore) CreateProject(_ context.Context, identifier, name string) (store.Project, error) {
	f.nextID++
	project := store.Project{ID: f.nextID, Identifier: identifier, Name: name}
	f.projects[project.ID] = project
	return project, nil
}

func (f *fakeStore) CountProjects(_ context.Context) (int, error) {
	return len(f.projects), nil
}

func (f *fakeStore) AddProjectMember(_ context.Context, projectID int64, userID, role string) error {
	f.memberships[membershipKey(projectID, userID)] = role
	return nil
}

func (f *fakeStore) GetProjectRole(_ context.Context, userID string, projectID int64) (string, error) {
	return f.memberships[membershipKey(projectID, userID)], nil
}

func membershipKey(projectID int64, userID string) string {
	return fmt.Sprintf("%d:%s", projectID, userID)
}

func (f *fakeStore) FindActiveTimeline(_ context.Context, projectID int64, name string) (*store.Timeline, error) {
	for i := len(f.timelines) - 1; i >= 0; i-- {
		t := f.timelines[i]
		if t.ProjectID == projectID && t.Name == name && t.IsActive {
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertActiveTimeline(ctx context.Context, projectID int64, name, data string) (store.Timeline, bool, error) {
	for i := range f.timelines {
		t := &f.timelines[i]
		if t.ProjectID == projectID && t.Name == name && t.IsActive {
			t.Data = data
			t.UpdatedAt = time.Now()
			return *t, false, nil
		}
	}
	f.nextID++
	t := store.Timeline{
		ID:        f.nextID,
		ProjectID: projectID,
		Name:      name,
		Data:      data,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.timelines = append(f.timelines, t)
	return t, true, nil
}

func (f *fakeStore) CreateTimeline(ctx context.Context, projectID int64, name, description, data string) (store.Timeline, error) {
	for _, t := range f.timelines {
		if t.ProjectID == projectID && t.Name == name && t.IsActive {
			return store.Timeline{}, store.ErrDuplicateName
		}
	}
	f.nextID++
	t := store.Timeline{
		ID:          f.nextID,
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		Data:        data,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.timelines = append(f.timelines, t)
	return t, nil
}

func (f *fakeStore) ListTimelineNames(_ context.Context, projectID int64) ([]string, error) {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, t := range f.timelines {
		if t.ProjectID == projectID && !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) DoneRatios(_ context.Context, ids []int64) (map[int64]int, error) {
	result := make(map[int64]int, len(ids))
	for _, id := range ids {
		if ratio, ok := f.ratios[id]; ok {
			result[id] = ratio
		}
	}
	return result, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) Ping(_ context.Context) error {
	return nil
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:         "test-secret",
		AccessTTL:         time.Hour,
		RefreshTTL:        24 * time.Hour,
		CORSOrigin:        "*",
		MaxDocumentBytes:  5 * 1024 * 1024,
		SaveRatePerSecond: 0,
	}
	return &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		accounts: authpw.NewService(fs),
		progress: progress.NewResolver(fs),
	}
}

// seedProject registers a project with one member and returns the
// project id plus a bearer token for the member.
func seedProject(t *testing.T, fs *fakeStore, svc *Service, role string) (int64, string) {
	t.Helper()
	project, err := fs.CreateProject(context.Background(), "proj", "Project")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	userID := fmt.Sprintf("user-%s", role)
	fs.users[userID] = store.User{ID: userID, Name: role + "-user"}
	if role != "" {
		fs.memberships[membershipKey(project.ID, userID)] = role
	}
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:  userID,
		Name: role + "-user",
		JTI:  "jti-" + role,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return project.ID, token
}
