package dto

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Message      string `json:"message"`
}

type JWKSet struct {
	Keys []map[string]any `json:"keys"`
}

type JWTConfigResponse struct {
	Algorithm              string `json:"algorithm"`
	Issuer                 string `json:"issuer"`
	Audience               string `json:"audience"`
	KeyID                  string `json:"key_id"`
	JWKSURL                string `json:"jwks_url"`
	TokenExpireMinutes     int64  `json:"token_expire_minutes"`
	RefreshTokenExpireDays int64  `json:"refresh_token_expire_days"`
}

type BlacklistResponse struct {
	BlacklistedTokens []string `json:"blacklisted_tokens"`
	Count             int      `json:"count"`
}
