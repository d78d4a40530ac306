package store

import "time"

type User struct {
	Login     string
	FullName  string
	CreatedAt time.Time
	LastLogin time.Time
}

type Notebook struct {
	ID        int64
	Name      string
	CreatedBy string
	Closed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Section struct {
	ID         int64
	NotebookID int64
	Name       string
	CreatedBy  string
	CreatedAt  time.Time
}

type Page struct {
	ID           string
	SectionID    int64
	Title        string
	Tag          string
	BodyHTML     string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SectionName  string
	NotebookID   int64
	NotebookName string
}

type PageSummary struct {
	ID           string
	Title        string
	Tag          string
	SectionID    int64
	SectionName  string
	NotebookID   int64
	NotebookName string
	CreatedBy    string
	UpdatedAt    time.Time
}

type Owner struct {
	Login    string
	FullName string
}

// PageFilter narrows ListPages. Zero values mean "any".
type PageFilter struct {
	NotebookID int64
	SectionID  int64
	Search     string
	TagsOnly   bool
	Limit      int32
	Offset     int32
}
