package clients

type CreateClientRequest struct {
	Code    string  `json:"code" validate:"required,max=50"`
	Name    string  `json:"name" validate:"required,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	TaxID   *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	Country string  `json:"country" validate:"required,len=2"`
	Notes   *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ListClientsRequest struct {
	IsActive *bool
	Search   *string
	Page     int
	PerPage  int
}
