package handlers

import (
	"encoding/json"
	"net/http"

	"tvvoo-addon/work/catalog"
	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/logos"
	"tvvoo-addon/work/memo"
	"tvvoo-addon/work/signature"

	"github.com/grafana/regexp"
)

// App bundles the components the HTTP handlers need. Handlers close over one
// App instance; none of them hold state of their own.
type App struct {
	Config     *config.Config
	Logger     *logger.Logger
	Client     *client.BackendClient
	Signatures *signature.Service
	Catalog    *catalog.Manager
	Logos      *logos.Store
	Memo       *memo.IPMemo
}

// streamIDPattern extracts the raw stream id from a stream request path so
// the capture middleware can memo the client IP before routing happens.
var streamIDPattern = regexp.MustCompile(`/stream/tv/([^/?#]+)\.json`)

// writeJSON renders v as a JSON response. Encoding failures surface as a 500
// only when nothing was written yet.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
