package authapi

import "authgate/cmd/account"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerAdminRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	AdminToken string `json:"adminToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type deleteUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// messageResponse is the single response envelope of every auth route.
type messageResponse struct {
	Message string        `json:"message"`
	Code    string        `json:"code,omitempty"`
	Token   string        `json:"token,omitempty"`
	User    *account.View `json:"user,omitempty"`
}

type usersResponse struct {
	Message string         `json:"message"`
	Users   []account.View `json:"users"`
}
