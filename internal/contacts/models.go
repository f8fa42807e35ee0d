package contacts

import "time"

// Contact is one address-book entry. Phone is always canonical.
type Contact struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email,omitempty"`
	Company   string     `json:"company,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	Favorite  bool       `json:"favorite"`
	CallCount int        `json:"callCount"`
	LastCall  *time.Time `json:"lastCall"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Input carries the user-editable fields for Add and Update.
type Input struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}
