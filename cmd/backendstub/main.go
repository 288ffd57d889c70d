// Command backendstub is a minimal stand-in for the non-ZNS channel
// backends (wallet/identity/ledger/contracts/proxy) that GhostBridge's
// dispatcher forwards to. It lets the multiplexer's forwarding path be
// exercised end-to-end without a real backend fleet.
package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ghostbridge/cmd/backendstub/config"
	"ghostbridge/cmd/backendstub/controllers"
	"ghostbridge/cmd/backendstub/routes"
	"ghostbridge/cmd/backendstub/services"
)

func main() {
	config.Load()
	svc := services.NewService()
	ctrl := controllers.NewStubController(svc)

	r := mux.NewRouter()
	routes.Register(r, ctrl)

	logrus.Infof("backend stub listening on %s", config.AppConfig.Port)
	if err := http.ListenAndServe(":"+config.AppConfig.Port, r); err != nil {
		logrus.Fatal(err)
	}
}
