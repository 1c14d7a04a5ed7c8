/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, issuer *TokenIssuer) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Login is the only operation available without a session.
	r.Post("/auth/login", h.LoginHandler)

	// Group routes that require an authenticated session.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(issuer))

		r.Post("/auth/logout", h.LogoutHandler)

		// Ledger operations
		r.Post("/accounts/{number}/deposit", h.DepositHandler)
		r.Post("/accounts/{number}/withdraw", h.WithdrawHandler)
		r.Post("/transfers", h.TransferHandler)
		r.Get("/accounts/{number}/transactions", h.HistoryHandler)
		r.Get("/accounts/{number}/balance", h.BalanceHandler)

		// Identity and account administration
		r.Post("/identities", h.CreateIdentityHandler)
		r.Get("/identities", h.ListIdentitiesHandler)
		r.Put("/identities/{loginID}/credentials", h.ResetCredentialsHandler)
		r.Put("/self/credentials", h.UpdateOwnCredentialsHandler)
		r.Post("/accounts", h.CreateAccountHandler)
	})

	return r
}
