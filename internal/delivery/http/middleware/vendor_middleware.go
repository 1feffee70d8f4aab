package middleware

import (
	"net/http"
	"whatprice-backend/internal/domain"
)

// VendorMiddleware ensures the authenticated user is a vendor account
// with a linked vendor id. MUST be used AFTER AuthMiddleware.
// Admins pass through so support staff can inspect vendor endpoints.
func VendorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
		if !ok || user == nil {
			http.Error(w, "Unauthorized: No user found in context", http.StatusUnauthorized)
			return
		}

		if user.Role == domain.RoleAdmin {
			next.ServeHTTP(w, r)
			return
		}

		if user.Role != domain.RoleVendor || user.VendorID == "" {
			http.Error(w, "Forbidden: Vendor account required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
