package permissions

import "time"

// Permission is an atomic capability in the catalog, identified by its slug.
type Permission struct {
	ID          int64      `json:"id"`
	App         string     `json:"app"`
	Module      string     `json:"module"`
	Action      string     `json:"action"`
	GroupName   string     `json:"group_name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// CatalogApp groups catalog entries by application for presentation.
type CatalogApp struct {
	App     string          `json:"app"`
	Modules []CatalogModule `json:"modules"`
}

// CatalogModule groups catalog entries by module.
type CatalogModule struct {
	Name        string             `json:"name"`
	Permissions []CatalogPermission `json:"permissions"`
}

// CatalogPermission is a single catalog entry within a module group.
type CatalogPermission struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// ModuleGroup groups catalog entries by module then permission group.
type ModuleGroup struct {
	Module string       `json:"module"`
	Groups []GroupEntry `json:"groups"`
}

// GroupEntry holds the permissions of one named group within a module.
type GroupEntry struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}
