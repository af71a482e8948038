// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"net/http"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/ctxutil"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
)

// # HTTP Enforcement

// Resolve turns verified token claims into a fresh [Principal] on every request.
//
// It must run after middleware.Authenticate. Anonymous requests pass through
// untouched; a deactivated account is rejected with 403 before any handler runs.
func (service *Service) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			next.ServeHTTP(writer, request)
			return
		}

		principal, err := service.LoadPrincipal(request.Context(), claims.UserID)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		if !principal.IsActive {
			respond.Error(writer, request, apperr.Forbidden(VerdictDeactivated))
			return
		}

		// Profiles written before the first login may lack identity fields.
		if principal.Email == "" {
			principal.Email = claims.Email
		}
		if principal.DisplayName == "" {
			principal.DisplayName = claims.DisplayName
		}

		next.ServeHTTP(writer, request.WithContext(WithPrincipal(request.Context(), principal)))
	})
}

// Enforce blocks requests whose principal lacks capability.
func (service *Service) Enforce(capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if err := service.Authorize(PrincipalFrom(request.Context()), capability); err != nil {
				respond.Error(writer, request, err)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// EnforceRole blocks requests whose principal's role is below role.
func (service *Service) EnforceRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := PrincipalFrom(request.Context())
			if principal == nil {
				respond.Error(writer, request, apperr.Unauthenticated("Authentication required"))
				return
			}
			if !principal.IsActive || !principal.Role.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden(VerdictInsufficient))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
