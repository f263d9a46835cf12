package scenes

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenesync/internal/ws"
)

// RegisterSceneRoutes registers the scene change feed on r. The RPC methods
// themselves are served by the transport daemon.
func RegisterSceneRoutes(r *mux.Router, handler *SceneHandler) {
	r.HandleFunc(ws.FeedPath, func(w http.ResponseWriter, req *http.Request) {
		glog.V(2).Infof("[scene] websocket %s", req.URL.String())
		handler.ServeWS(w, req)
	}).Methods(http.MethodGet)
}
