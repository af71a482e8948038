// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/middleware"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the authentication endpoints.
type Handler struct {
	service *Service

	// exposeResetTokens returns reset tokens in the response body. Only for
	// development, where no mail delivery is configured.
	exposeResetTokens bool
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, exposeResetTokens bool) *Handler {
	return &Handler{service: service, exposeResetTokens: exposeResetTokens}
}

// Routes returns the /auth router.
//
// # Endpoints
//   - POST /register        : Creates a new account.
//   - POST /login           : Authenticates and sets the refresh cookie.
//   - POST /refresh         : Rotates the refresh cookie.
//   - POST /logout          : Revokes the refresh session.
//   - POST /forgot-password : Issues a reset token.
//   - POST /reset-password  : Consumes a reset token.
//   - POST /change-password : Changes the password of the caller.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	throttle := middleware.AuthRateLimit(constants.AuthRateLimitRequests, constants.AuthRateLimitWindow)

	router.Post("/register", handler.register)
	router.With(throttle).Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.With(throttle).Post("/forgot-password", handler.forgotPassword)
	router.With(throttle).Post("/reset-password", handler.resetPassword)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/change-password", handler.changePassword)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

/*
Register handles the creation of a new account.

POST /api/v1/auth/register

Response:
  - 201: Account
  - 400: Validation failure
  - 409: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, MinPasswordLength).
		MaxLen(FieldDisplayName, input.DisplayName, MaxDisplayNameLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.service.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Response:
  - 200: Access token and account
  - 401: Invalid credentials
  - 403: Account deactivated
  - 429: Too many attempts
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.service.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)
	respond.OK(writer, tokenResponse(session, true))
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Response:
  - 204: Session terminated (also when no session was present)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		if err := handler.service.Logout(request.Context(), cookie.Value); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
Refresh issues a new access token using the refresh cookie.

POST /api/v1/auth/refresh

Response:
  - 200: New access token
  - 401: Missing, replayed or expired refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.service.Refresh(request.Context(), cookie.Value, request.UserAgent(), middleware.RealIP(request))
	if err != nil {
		clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)
	respond.OK(writer, tokenResponse(session, false))
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Response:
  - 200: Generic message, whether or not the email is registered
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	token, err := handler.service.RequestPasswordReset(request.Context(), input.Email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	body := map[string]string{
		FieldMessage: "If this email is registered, a reset link has been sent.",
	}
	if handler.exposeResetTokens && token != "" {
		body[FieldToken] = token
	}
	respond.OK(writer, body)
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Response:
  - 200: Password updated
  - 404: Token unknown or expired
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldToken, input.Token).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, MinPasswordLength)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Password updated successfully"})
}

/*
ChangePassword updates the caller's password.

POST /api/v1/auth/change-password

Response:
  - 200: Password changed
  - 401: Not signed in or wrong current password
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	currentToken := ""
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		currentToken = cookie.Value
	}

	err = handler.service.ChangePassword(request.Context(), claims.UserID, input.CurrentPassword, input.NewPassword, currentToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Password changed successfully"})
}

// # Cookies

func setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func tokenResponse(session *LoginSession, withAccount bool) map[string]any {
	body := map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int(constants.AccessTokenTTL / time.Second),
	}
	if withAccount {
		body[FieldUser] = session.Account
	}
	return body
}
