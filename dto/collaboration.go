package dto

type InviteCollaboratorRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=viewer editor admin"`
}

type UpdateGrantRequest struct {
	Role string `json:"role" binding:"required,oneof=viewer editor admin"`
}
