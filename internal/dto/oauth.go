package dto

type ProviderInfo struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	AuthURL  string `json:"auth_url"`
}

type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
}

type OAuthCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// OAuthBindRequest accepts either a provider access token or an
// authorization code to exchange for one.
type OAuthBindRequest struct {
	AccessToken string `json:"access_token,omitempty"`
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
}

type OAuthBindResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id,omitempty"`
}

type OIDCCallbackRequest struct {
	Issuer string `json:"issuer"`
	Code   string `json:"code"`
	State  string `json:"state,omitempty"`
}

type OIDCAuthorizeResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// OIDCConfiguration is the subset of the discovery document we consume.
type OIDCConfiguration struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
