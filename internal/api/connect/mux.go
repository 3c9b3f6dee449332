package connect

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/boxbreath/internal/api/pacerv1/pacerv1connect"
	"github.com/osa030/boxbreath/internal/app/session"
)

// NewMux registers the admin and watch services on a new mux. Admin
// calls require adminToken.
func NewMux(mgr *session.Manager, adminToken string) *http.ServeMux {
	mux := http.NewServeMux()

	adminPath, adminHandler := pacerv1connect.NewAdminServiceHandler(
		NewAdminService(mgr),
		connect.WithInterceptors(NewAdminAuthInterceptor(adminToken)),
	)
	watchPath, watchHandler := pacerv1connect.NewWatchServiceHandler(NewWatchService(mgr))

	mux.Handle(adminPath, adminHandler)
	mux.Handle(watchPath, watchHandler)
	return mux
}
