package routes

import (
	"github.com/gorilla/mux"

	"ghostbridge/cmd/backendstub/controllers"
	"ghostbridge/cmd/backendstub/middleware"
)

// Register wires the stub's routes: a GET /_calls introspection endpoint for
// tests, and one catch-all /{channel} prefix route that serves every other
// path.
func Register(r *mux.Router, sc *controllers.StubController) {
	r.Use(middleware.Logger)
	r.HandleFunc("/_calls", sc.Calls).Methods("GET")
	r.PathPrefix("/{channel}").HandlerFunc(sc.Handle)
}
