package database

import "net/http"

// Middleware injects the pool querier into every request context so handlers
// and repositories can run without further wiring. Mutation paths replace it
// with a transaction querier via RunInTx.
func Middleware(db *DB) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(WithQuerier(r.Context(), db.Pool)))
		}
	}
}
