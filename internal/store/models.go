package store

import "time"

type User struct {
	ID           string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	ID         int64
	Identifier string
	Name       string
	CreatedAt  time.Time
}

// Timeline is one persisted timeline document row. Data holds the raw
// JSON payload exactly as the client submitted it; at most one row per
// (ProjectID, Name) carries IsActive.
type Timeline struct {
	ID          int64
	ProjectID   int64
	Name        string
	Description string
	Data        string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Issue mirrors the external work-item table this service reads
// progress from. Only the columns the resolver needs are modeled.
type Issue struct {
	ID        int64
	ProjectID int64
	Subject   string
	DoneRatio int
}
