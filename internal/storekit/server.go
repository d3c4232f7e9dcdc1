// Package storekit is a local stand-in for the App Store Server API read endpoints.
package storekit

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/logging"
)

// Vendor error codes used by the stand-in.
const (
	errorCodeTransactionNotFound = 4040010
	errorCodeUnauthorized        = 4010000

	subscriptionGroup = "holly.premium"
)

// Server serves fixtures the way the vendor serves real transactions.
type Server struct {
	router   *mux.Router
	fixtures *Fixtures
	signer   *signer
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	failures map[string][]int
}

func NewServer(fx *Fixtures, now func() time.Time, logger zerolog.Logger) (*Server, error) {
	if now == nil {
		now = time.Now
	}
	sgn, err := newSigner(now())
	if err != nil {
		return nil, err
	}

	failures := make(map[string][]int, len(fx.Failures))
	for path, codes := range fx.Failures {
		failures[path] = append([]int(nil), codes...)
	}

	s := &Server{
		router:   mux.NewRouter(),
		fixtures: fx,
		signer:   sgn,
		now:      now,
		logger:   logger.With().Str("component", "storekit").Logger(),
		failures: failures,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/inApps/v1/subscriptions/{id}", s.SubscriptionsHandler).Methods("GET")
	s.router.HandleFunc("/inApps/v1/transactions/{id}", s.TransactionHandler).Methods("GET")

	s.router.Use(s.loggingMiddleware, s.authMiddleware, s.failureMiddleware)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RootPEM is the certificate every blob chains to, for signature verification.
func (s *Server) RootPEM() []byte {
	return s.signer.rootPEM()
}

// SubscriptionsHandler handles GET /inApps/v1/subscriptions/{id}
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	now := s.now()

	var last []api.LastTransaction
	for _, fx := range s.fixtures.Transactions {
		if fx.OriginalTransactionID != id {
			continue
		}
		blob, err := s.signer.sign(s.claims(fx, now))
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to sign transaction")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		status := api.SubscriptionStatusActive
		if fx.expiresIn <= 0 {
			status = api.SubscriptionStatusExpired
		}
		last = append(last, api.LastTransaction{
			OriginalTransactionID: fx.OriginalTransactionID,
			Status:                status,
			SignedTransactionInfo: blob,
		})
	}

	if len(last) == 0 {
		s.writeError(w, http.StatusNotFound, errorCodeTransactionNotFound, "Transaction id not found.")
		return
	}

	s.writeJSON(w, http.StatusOK, api.SubscriptionStatusResponse{
		Environment: s.fixtures.Environment,
		BundleID:    s.fixtures.BundleID,
		Data: []api.SubscriptionGroupItem{{
			SubscriptionGroupIdentifier: subscriptionGroup,
			LastTransactions:            last,
		}},
	})
}

// TransactionHandler handles GET /inApps/v1/transactions/{id}
func (s *Server) TransactionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	idx := slices.IndexFunc(s.fixtures.Transactions, func(fx Fixture) bool { return fx.TransactionID == id })
	if idx < 0 {
		s.writeError(w, http.StatusNotFound, errorCodeTransactionNotFound, "Transaction id not found.")
		return
	}

	blob, err := s.signer.sign(s.claims(s.fixtures.Transactions[idx], s.now()))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign transaction")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TransactionInfoResponse{SignedTransactionInfo: blob})
}

func (s *Server) claims(fx Fixture, now time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"transactionId":         fx.TransactionID,
		"originalTransactionId": fx.OriginalTransactionID,
		"bundleId":              s.fixtures.BundleID,
		"productId":             fx.ProductID,
		"purchaseDate":          now.Add(-time.Hour).UnixMilli(),
		"expiresDate":           now.Add(fx.expiresIn).UnixMilli(),
		"type":                  "Auto-Renewable Subscription",
		"environment":           s.fixtures.Environment,
		"signedDate":            now.UnixMilli(),
	}
	if fx.Trial {
		claims["offerType"] = 1
		claims["offerDiscountType"] = "FREE_TRIAL"
	}
	return claims
}

// authMiddleware accepts any well-formed bearer token addressed to the App Store audience.
// Signatures are not checked.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	parser := jwt.NewParser()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.writeError(w, http.StatusUnauthorized, errorCodeUnauthorized, "Missing bearer token.")
			return
		}

		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
			s.writeError(w, http.StatusUnauthorized, errorCodeUnauthorized, "Malformed bearer token.")
			return
		}
		aud, err := claims.GetAudience()
		if err != nil || !slices.Contains(aud, appstore.Audience) {
			s.writeError(w, http.StatusUnauthorized, errorCodeUnauthorized, "Wrong token audience.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// failureMiddleware replays scripted failures for a path before serving it normally.
func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var code int
		if codes := s.failures[r.URL.Path]; len(codes) > 0 {
			code, s.failures[r.URL.Path] = codes[0], codes[1:]
		}
		s.mu.Unlock()

		if code != 0 {
			s.logger.Info().Str("path", r.URL.Path).Int("status", code).Msg("Scripted failure")
			w.WriteHeader(code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("id", logging.TruncateID(mux.Vars(r)["id"])).
			Dur("elapsed", time.Since(start)).
			Msg("StoreKit request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status, code int, message string) {
	s.writeJSON(w, status, api.AppStoreErrorResponse{ErrorCode: code, ErrorMessage: message})
}
