package handler

import "time"

// --- Request types ---

type signupRequest struct {
	Name     string `json:"name"     example:"Jane Doe"`
	Email    string `json:"email"    example:"jane@transcope.io"`
	Password string `json:"password" example:"secret1"`
	Role     string `json:"role,omitempty" example:"manager" enums:"manager,dispatcher,safety_officer,financial_analyst"`
}

type loginRequest struct {
	Email    string `json:"email"    example:"jane@transcope.io"`
	Password string `json:"password" example:"secret1"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" example:"jane@transcope.io"`
}

// --- Response types ---

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role" example:"manager"`
}

type userListItem struct {
	userResponse
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type meResponse struct {
	Success bool         `json:"success"`
	Data    userResponse `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listUsersResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Data    []userListItem `json:"data"`
}
