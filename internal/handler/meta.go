package handler

import (
	"context"
	"net/http"

	"github.com/web3-frozen/yield-tracker/internal/query"
)

func metaHandler[T any](load func(context.Context) ([]T, error), what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list "+what)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// Networks serves GET /api/meta/networks.
func Networks(svc *query.Service) http.HandlerFunc {
	return metaHandler(svc.DistinctNetworks, "networks")
}

// Categories serves GET /api/meta/categories.
func Categories(svc *query.Service) http.HandlerFunc {
	return metaHandler(svc.DistinctCategories, "categories")
}

// Assets serves GET /api/meta/assets.
func Assets(svc *query.Service) http.HandlerFunc {
	return metaHandler(svc.DistinctAssets, "assets")
}
