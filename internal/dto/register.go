package dto

type PasswordRegisterRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
	FullName string `json:"user_full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type SMSRegisterRequest struct {
	Phone            string `json:"phone"`
	VerificationCode string `json:"verification_code"`
	UserName         string `json:"user_name,omitempty"`
	FullName         string `json:"user_full_name,omitempty"`
}

type EmailRegisterRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verification_code"`
	UserName         string `json:"user_name,omitempty"`
	FullName         string `json:"user_full_name,omitempty"`
}
