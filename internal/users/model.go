package users

import "time"

// User is an account holder. Guests get a synthetic ID and empty email.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	CompanyName string    `json:"companyName"`
	CNPJ        string    `json:"cnpj"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
