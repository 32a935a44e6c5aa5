package dto

type SendCodeRequest struct {
	Identifier string `json:"identifier"`
	CodeType   string `json:"code_type"`
	Purpose    string `json:"purpose,omitempty"`
	Language   string `json:"language,omitempty"`
}

type SendCodeResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}
