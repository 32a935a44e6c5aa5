package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/netutil"
	"identity/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type handler struct {
	auth       service.AuthService
	codes      service.VerificationService
	tokens     service.TokenService
	oauth      service.OAuthService
	trustProxy bool
}

func (h *handler) clientIP(r *http.Request) string {
	return netutil.ClientIP(r, h.trustProxy)
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed JSON body")
	}
	return nil
}

// ====== Login ======

func (h *handler) loginPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.auth.LoginPassword(r.Context(), req, h.clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) loginSMS(w http.ResponseWriter, r *http.Request) {
	var req dto.SMSLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.loginCode(w, r, req.Phone, req.VerificationCode, domain.ChannelSMS)
}

func (h *handler) loginEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.loginCode(w, r, req.Email, req.VerificationCode, domain.ChannelEmail)
}

func (h *handler) loginCode(w http.ResponseWriter, r *http.Request, identifier, code string, ch domain.Channel) {
	res, err := h.auth.LoginCode(r.Context(), identifier, code, ch, h.clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	b, _ := bearerFrom(r.Context())
	res, err := h.auth.Logout(r.Context(), b.claims, b.token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	b, _ := bearerFrom(r.Context())
	res, err := h.auth.CurrentUser(r.Context(), b.claims)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req dto.SendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ttl, err := h.codes.Send(r.Context(), service.SendCodeInput{
		Identifier: req.Identifier,
		Channel:    domain.Channel(strings.ToLower(strings.TrimSpace(req.CodeType))),
		Purpose:    req.Purpose,
		IP:         h.clientIP(r),
		UserAgent:  r.UserAgent(),
		Language:   req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SendCodeResponse{
		Success:   true,
		Message:   "verification code sent",
		ExpiresIn: int(ttl.Seconds()),
	})
}

// ====== Registration ======

func (h *handler) registerPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.auth.RegisterPassword(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) registerSMS(w http.ResponseWriter, r *http.Request) {
	var req dto.SMSRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.registerCode(w, r, service.CodeRegistration{
		Identifier: req.Phone,
		Channel:    domain.ChannelSMS,
		Code:       req.VerificationCode,
		UserName:   req.UserName,
		FullName:   req.FullName,
	})
}

func (h *handler) registerEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.registerCode(w, r, service.CodeRegistration{
		Identifier: req.Email,
		Channel:    domain.ChannelEmail,
		Code:       req.VerificationCode,
		UserName:   req.UserName,
		FullName:   req.FullName,
	})
}

func (h *handler) registerCode(w http.ResponseWriter, r *http.Request, reg service.CodeRegistration) {
	res, err := h.auth.RegisterCode(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ====== OAuth ======

func providerParam(r *http.Request) (domain.Provider, error) {
	p := domain.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	if !p.Valid() {
		return "", domain.ErrUnknownProvider
	}
	return p, nil
}

func (h *handler) providers(w http.ResponseWriter, r *http.Request) {
	list, err := h.oauth.Providers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ProvidersResponse{Providers: list})
}

func (h *handler) authorize(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, _, err := h.oauth.AuthorizeURL(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callback accepts the provider redirect (GET query) or a JSON body posted by
// a front end.
func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.OAuthCallbackRequest
	if r.Method == http.MethodGet {
		req.Code = r.URL.Query().Get("code")
		req.State = r.URL.Query().Get("state")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.oauth.Login(r.Context(), p, req.Code, req.State, h.clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) bind(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, _ := bearerFrom(r.Context())
	userID, err := uuid.Parse(b.claims.Subject)
	if err != nil {
		writeError(w, r, domain.ErrInvalidToken)
		return
	}
	var req dto.OAuthBindRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.oauth.Bind(r.Context(), userID, p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) unbind(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, _ := bearerFrom(r.Context())
	userID, err := uuid.Parse(b.claims.Subject)
	if err != nil {
		writeError(w, r, domain.ErrInvalidToken)
		return
	}
	if err := h.oauth.Unbind(r.Context(), userID, p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OAuthBindResponse{Success: true, Message: "account unbound", Provider: string(p)})
}

// ====== OIDC ======

func (h *handler) oidcAuthorize(w http.ResponseWriter, r *http.Request) {
	issuer := r.URL.Query().Get("issuer")
	if issuer == "" {
		target, state, err := h.oauth.AuthorizeURL(r.Context(), domain.ProviderOIDC)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.OIDCAuthorizeResponse{AuthURL: target, State: state})
		return
	}
	res, err := h.oauth.OIDCAuthorizeURL(r.Context(), issuer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) oidcCallback(w http.ResponseWriter, r *http.Request) {
	var req dto.OIDCCallbackRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Code, req.State, req.Issuer = q.Get("code"), q.Get("state"), q.Get("issuer")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var (
		res *dto.LoginResponse
		err error
	)
	if req.Issuer == "" {
		res, err = h.oauth.Login(r.Context(), domain.ProviderOIDC, req.Code, req.State, h.clientIP(r))
	} else {
		res, err = h.oauth.LoginOIDC(r.Context(), req.Issuer, req.Code, req.State, h.clientIP(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// oidcDiscover takes the issuer from ?issuer= or the path remainder, which may
// be percent-encoded.
func (h *handler) oidcDiscover(w http.ResponseWriter, r *http.Request) {
	issuer := r.URL.Query().Get("issuer")
	if issuer == "" {
		raw, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil {
			writeError(w, r, badRequest("issuer is malformed"))
			return
		}
		issuer = raw
	}
	if issuer == "" {
		writeError(w, r, badRequest("issuer is required"))
		return
	}
	res, err := h.oauth.DiscoverOIDC(r.Context(), issuer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ====== Interop ======

func (h *handler) jwks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.tokens.JWKS())
}

func (h *handler) jwtConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tokens.JWTConfig())
}

func (h *handler) blacklist(w http.ResponseWriter, r *http.Request) {
	list, err := h.tokens.ListBlacklisted(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BlacklistResponse{BlacklistedTokens: list, Count: len(list)})
}
