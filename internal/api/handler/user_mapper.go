package handler

import (
	"github.com/transcope/fleet-auth/internal/core/domain"
	"github.com/transcope/fleet-auth/internal/core/ports"
)

// --- Request → Service input ---

func toSignupInput(req signupRequest) ports.SignupInput {
	return ports.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}
}

// --- Service result → HTTP response ---

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role.Wire(),
	}
}

func toAuthResponse(r *ports.AuthResult) authResponse {
	return authResponse{
		Success: true,
		Token:   r.Token,
		User:    toUserResponse(r.User),
	}
}

func toListResponse(users []*domain.User) listUsersResponse {
	items := make([]userListItem, len(users))
	for i, u := range users {
		items[i] = userListItem{userResponse: toUserResponse(u), CreatedAt: u.CreatedAt.UTC()}
	}
	return listUsersResponse{Success: true, Count: len(items), Data: items}
}
