package permissions

type CreatePermissionRequest struct {
	App         string `json:"app" validate:"required,max=100"`
	Module      string `json:"module" validate:"required,max=100"`
	Action      string `json:"action" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type UpdatePermissionRequest struct {
	App         *string `json:"app,omitempty" validate:"omitempty,max=100"`
	Module      *string `json:"module,omitempty" validate:"omitempty,max=100"`
	Action      *string `json:"action,omitempty" validate:"omitempty,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type ListPermissionsRequest struct {
	Search  string `json:"search"`
	Module  string `json:"module"`
	SortBy  string `json:"sort_by"`
	SortDir string `json:"sort_dir"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}
