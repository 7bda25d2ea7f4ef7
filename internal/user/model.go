package user

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Password string `json:"-"`
}

// RosterEntry is one row of a user listing: a known account, or just a bare
// username when a friend's account is absent from the queried roster.
type RosterEntry struct {
	Username string `json:"username"`
	Fullname string `json:"fullname,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Fullname string `json:"fullname" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Fullname    string `json:"fullname"`
}
