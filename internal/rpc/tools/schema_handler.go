// Package tools serves the agent's tool definitions over HTTP.
package tools

import (
	"encoding/json"
	"net/http"

	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

// SchemaHandler serves the tool definitions advertised to the model,
// including their JSON Schema parameter contracts.
type SchemaHandler struct{}

// ServeHTTP renders the definitions.
func (SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tools.Defs())
}
