package roles

type CreateRoleRequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Description   string  `json:"description" validate:"max=500"`
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
}

type UpdateRoleRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=500"`
	PermissionIDs []int64 `json:"permission_ids,omitempty" validate:"omitempty,min=1,dive,gt=0"`
}

type RoleIDsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type ChangeStatusRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Status string  `json:"status" validate:"required"`
}

type AssignPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
}

type ListRolesRequest struct {
	Search     string `json:"search"`
	Status     string `json:"status"`
	SortBy     string `json:"sort_by"`
	SortDir    string `json:"sort_dir"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	ActiveOnly bool   `json:"-"`
	Trashed    bool   `json:"-"`
}
