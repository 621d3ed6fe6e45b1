package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"timeline/api/internal/auth"
	"timeline/api/internal/authpw"
	"timeline/api/internal/config"
	"timeline/api/internal/progress"
	"timeline/api/internal/rbac"
	"timeline/api/internal/store"
	"timeline/api/internal/timeline"
	"timeline/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	ExpiresAt    time.Time
}

const maxNameLength = 255

type dataStore interface {
	GetUserByName(ctx context.Context, name string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
	CreateProject(ctx context.Context, identifier, name string) (store.Project, error)
	CountProjects(ctx context.Context) (int, error)
	AddProjectMember(ctx context.Context, projectID int64, userID, role string) error
	GetProjectRole(ctx context.Context, userID string, projectID int64) (string, error)
	FindActiveTimeline(ctx context.Context, projectID int64, name string) (*store.Timeline, error)
	UpsertActiveTimeline(ctx context.Context, projectID int64, name, data string) (store.Timeline, bool, error)
	CreateTimeline(ctx context.Context, projectID int64, name, description, data string) (store.Timeline, error)
	ListTimelineNames(ctx context.Context, projectID int64) ([]string, error)
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh tokens; Redis-backed in production, the
// Postgres tables otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	progress *progress.Resolver
}

func New(cfg config.Config, dataStore *store.PostgresStore, progressSource progress.Source) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		accounts: authpw.NewService(dataStore),
		progress: progress.NewResolver(progressSource),
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, progressSource progress.Source) *Service {
	service := New(cfg, dataStore, progressSource)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a demo project and account on an empty database so a
// fresh install is usable immediately.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountProjects(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	project, err := s.store.CreateProject(ctx, "demo", "Demo Project")
	if err != nil {
		return err
	}
	user, err := s.accounts.SignUp(ctx, "demo", "demo-password")
	if err != nil {
		return err
	}
	if err := s.store.AddProjectMember(ctx, project.ID, user.ID, string(rbac.RoleAdmin)); err != nil {
		return err
	}
	log.Printf("bootstrap: seeded project %q (id %d) with user %q", project.Name, project.ID, user.Name)
	return nil
}

// Accounts and sessions

func (s *Service) SignUp(ctx context.Context, name, password string) (store.User, error) {
	return s.accounts.SignUp(ctx, name, password)
}

func (s *Service) SignIn(ctx context.Context, name, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, name, password)
	if err != nil {
		return Session{}, err
	}
	return s.createSession(ctx, user)
}

func (s *Service) createSession(ctx context.Context, user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := util.NewID("rt")
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.Name,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load refresh user: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("rotate refresh session: %w", err)
	}
	return s.createSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Timeline operations

// authorize resolves the caller's project role and checks the action.
// Non-members hold no role and are denied outright.
func (s *Service) authorize(ctx context.Context, session Session, projectID int64, action rbac.Action) error {
	role, err := s.store.GetProjectRole(ctx, session.UserID, projectID)
	if err != nil {
		return fmt.Errorf("resolve project role: %w", err)
	}
	if !rbac.Can(rbac.Role(role), action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// Overview returns every document name the project has used plus the
// formatted active default document.
func (s *Service) Overview(ctx context.Context, session Session, projectID int64) (map[string]any, error) {
	if err := s.authorize(ctx, session, projectID, rbac.ActionView); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	names, err := s.store.ListTimelineNames(ctx, projectID)
	if err != nil {
		return nil, err
	}

	active, err := s.store.FindActiveTimeline(ctx, projectID, timeline.DefaultName)
	if err != nil {
		return nil, err
	}

	name := timeline.DefaultName
	var response timeline.Response
	if active != nil {
		name = active.Name
		doc := parseStored(active.Data)
		if len(doc.Categories) > 0 {
			ratios, err := s.progress.Resolve(ctx, doc)
			if err != nil {
				return nil, err
			}
			response = timeline.Format(&doc, active.Name, "Timeline overview", active.UpdatedAt, ratios)
		} else {
			response = timeline.Format(nil, active.Name, "Default timeline data", time.Time{}, nil)
		}
	} else {
		response = timeline.Format(nil, name, "Default timeline data", time.Time{}, nil)
	}

	return map[string]any{
		"success": true,
		"names":   names,
		"name":    name,
		"data":    response,
	}, nil
}

// Load returns the formatted active document for (projectID, name).
func (s *Service) Load(ctx context.Context, session Session, projectID int64, name string) (map[string]any, error) {
	if err := s.authorize(ctx, session, projectID, rbac.ActionView); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = timeline.DefaultName
	}
	active, err := s.store.FindActiveTimeline(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No saved timeline data", nil)
	}

	doc := parseStored(active.Data)
	ratios, err := s.progress.Resolve(ctx, doc)
	if err != nil {
		return nil, err
	}
	response := timeline.Format(&doc, active.Name, "Timeline data loaded from server", active.UpdatedAt, ratios)

	return map[string]any{
		"success": true,
		"name":    active.Name,
		"data":    response,
	}, nil
}

// Save validates the raw payload and replaces the active document for
// (projectID, name) in one locked upsert.
func (s *Service) Save(ctx context.Context, session Session, projectID int64, name, rawData string) (map[string]any, error) {
	if err := s.authorize(ctx, session, projectID, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	name = normalizeName(name)
	if _, err := timeline.ParseDocument([]byte(rawData), s.cfg.MaxDocumentBytes); err != nil {
		return nil, validationToDomain(err)
	}

	saved, created, err := s.store.UpsertActiveTimeline(ctx, projectID, name, rawData)
	if err != nil {
		return nil, err
	}

	message := "Timeline updated successfully"
	if created {
		message = "Timeline created successfully"
	}
	return map[string]any{
		"success":    true,
		"message":    message,
		"documentId": saved.ID,
		"updatedAt":  saved.UpdatedAt.UTC().Format(time.RFC3339),
		"wasCreated": created,
	}, nil
}

// Create makes a new named document with a default empty body, failing
// when an active document of that name already exists.
func (s *Service) Create(ctx context.Context, session Session, projectID int64, name string) (map[string]any, error) {
	if err := s.authorize(ctx, session, projectID, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Timeline name is required", map[string]string{"name": "required"})
	}
	name = truncateName(name)

	body, err := json.Marshal(timeline.Format(nil, name, "Default timeline data", time.Time{}, nil))
	if err != nil {
		return nil, fmt.Errorf("marshal default document: %w", err)
	}

	created, err := s.store.CreateTimeline(ctx, projectID, name, "", string(body))
	if errors.Is(err, store.ErrDuplicateName) {
		return nil, domainError(http.StatusConflict, "DUPLICATE_NAME", "A timeline with that name already exists", nil)
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("Timeline %q created successfully", created.Name),
		"documentId": created.ID,
		"name":       created.Name,
	}, nil
}

// parseStored leniently decodes a persisted payload. Rows are validated
// at write time, so a decode failure here means corruption; reads
// degrade to an empty tree rather than failing.
func parseStored(data string) timeline.Document {
	var doc timeline.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		log.Printf("app: stored timeline payload undecodable, serving empty tree: %v", err)
		return timeline.Document{}
	}
	return doc
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return timeline.DefaultName
	}
	return truncateName(name)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNameLength {
		return name
	}
	return string(runes[:maxNameLength])
}

func validationToDomain(err error) error {
	var vErr *timeline.ValidationError
	if !errors.As(err, &vErr) {
		return err
	}
	details := map[string]string{vErr.Field: vErr.Message}
	switch vErr.Code {
	case timeline.CodeMalformedJSON:
		return domainError(http.StatusBadRequest, "MALFORMED_JSON", "Request data is not valid JSON", details)
	case timeline.CodeTooLarge:
		return domainError(http.StatusUnprocessableEntity, "TOO_LARGE", "Timeline data exceeds the size limit", details)
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Timeline data failed validation", details)
	}
}
