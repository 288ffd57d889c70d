package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"ghostbridge/cmd/backendstub/services"
)

// StubController answers every forwarded request with a canned
// acknowledgement, echoing the channel and the body the dispatcher sent so
// tests can verify the forward reached this process unmodified.
type StubController struct {
	svc *services.StubService
}

func NewStubController(svc *services.StubService) *StubController {
	return &StubController{svc: svc}
}

// Handle answers any /{channel}/{rest...} request registered in routes.go.
func (c *StubController) Handle(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count := c.svc.Record(channel)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"channel":    channel,
		"call_count": count,
		"echo":       json.RawMessage(fallbackJSON(body)),
	})
}

// fallbackJSON returns body unchanged if it already looks like JSON, or a
// quoted string otherwise, so Handle never writes an invalid response body.
func fallbackJSON(body []byte) []byte {
	if len(body) == 0 {
		return []byte("null")
	}
	var js json.RawMessage
	if json.Unmarshal(body, &js) == nil {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// Calls reports per-channel request counts, useful for integration test
// assertions against the gateway's forwarding path.
func (c *StubController) Calls(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c.svc.Calls())
}
