package middleware

import "net/http"

const (
	allowedMethods = "OPTIONS, GET, POST, PUT, PATCH, DELETE"
	allowedHeaders = "Content-Type, Authorization"
)

// CORS opens the API to any origin. Preflight requests end here with 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
