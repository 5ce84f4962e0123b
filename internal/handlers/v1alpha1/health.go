package v1alpha1

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
)

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.Health{Status: "healthy", Timestamp: time.Now().UTC()})
}
