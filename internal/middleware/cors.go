package middleware

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// CORS allows browser clients served from origin to call the daemon. An empty
// origin allows any.
func CORS(origin string) mux.MiddlewareFunc {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With, X-Request-Id")
			if origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				glog.V(2).Infof("[cors] preflight for %s", r.URL.Path)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
