// Package pacerv1connect wires the pacer.v1 services to Connect handlers
// and clients.
package pacerv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
)

const (
	// AdminServiceName is the fully-qualified name of the AdminService.
	AdminServiceName = "pacer.v1.AdminService"
	// WatchServiceName is the fully-qualified name of the WatchService.
	WatchServiceName = "pacer.v1.WatchService"
)

const (
	AdminServiceGetStatusProcedure   = "/pacer.v1.AdminService/GetStatus"
	AdminServiceStartProcedure       = "/pacer.v1.AdminService/Start"
	AdminServicePauseProcedure       = "/pacer.v1.AdminService/Pause"
	AdminServiceResumeProcedure      = "/pacer.v1.AdminService/Resume"
	AdminServiceStopProcedure        = "/pacer.v1.AdminService/Stop"
	AdminServiceResetProcedure       = "/pacer.v1.AdminService/Reset"
	AdminServiceSetShapeProcedure    = "/pacer.v1.AdminService/SetShape"
	AdminServiceSetPlanProcedure     = "/pacer.v1.AdminService/SetPlan"
	AdminServiceListHistoryProcedure = "/pacer.v1.AdminService/ListHistory"
	WatchServiceWatchProcedure       = "/pacer.v1.WatchService/Watch"
)

// AdminServiceHandler is implemented by the admin service.
type AdminServiceHandler interface {
	GetStatus(context.Context, *connect.Request[pacerv1.GetStatusRequest]) (*connect.Response[pacerv1.GetStatusResponse], error)
	Start(context.Context, *connect.Request[pacerv1.StartRequest]) (*connect.Response[pacerv1.StartResponse], error)
	Pause(context.Context, *connect.Request[pacerv1.PauseRequest]) (*connect.Response[pacerv1.PauseResponse], error)
	Resume(context.Context, *connect.Request[pacerv1.ResumeRequest]) (*connect.Response[pacerv1.ResumeResponse], error)
	Stop(context.Context, *connect.Request[pacerv1.StopRequest]) (*connect.Response[pacerv1.StopResponse], error)
	Reset(context.Context, *connect.Request[pacerv1.ResetRequest]) (*connect.Response[pacerv1.ResetResponse], error)
	SetShape(context.Context, *connect.Request[pacerv1.SetShapeRequest]) (*connect.Response[pacerv1.SetShapeResponse], error)
	SetPlan(context.Context, *connect.Request[pacerv1.SetPlanRequest]) (*connect.Response[pacerv1.SetPlanResponse], error)
	ListHistory(context.Context, *connect.Request[pacerv1.ListHistoryRequest]) (*connect.Response[pacerv1.ListHistoryResponse], error)
}

// WatchServiceHandler is implemented by the watch service.
type WatchServiceHandler interface {
	Watch(context.Context, *connect.Request[pacerv1.WatchRequest], *connect.ServerStream[pacerv1.Notification]) error
}

// NewAdminServiceHandler builds an HTTP handler for the admin service. It
// returns the path to mount the handler on.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	routes := map[string]http.Handler{
		AdminServiceGetStatusProcedure:   connect.NewUnaryHandler(AdminServiceGetStatusProcedure, svc.GetStatus, opts...),
		AdminServiceStartProcedure:       connect.NewUnaryHandler(AdminServiceStartProcedure, svc.Start, opts...),
		AdminServicePauseProcedure:       connect.NewUnaryHandler(AdminServicePauseProcedure, svc.Pause, opts...),
		AdminServiceResumeProcedure:      connect.NewUnaryHandler(AdminServiceResumeProcedure, svc.Resume, opts...),
		AdminServiceStopProcedure:        connect.NewUnaryHandler(AdminServiceStopProcedure, svc.Stop, opts...),
		AdminServiceResetProcedure:       connect.NewUnaryHandler(AdminServiceResetProcedure, svc.Reset, opts...),
		AdminServiceSetShapeProcedure:    connect.NewUnaryHandler(AdminServiceSetShapeProcedure, svc.SetShape, opts...),
		AdminServiceSetPlanProcedure:     connect.NewUnaryHandler(AdminServiceSetPlanProcedure, svc.SetPlan, opts...),
		AdminServiceListHistoryProcedure: connect.NewUnaryHandler(AdminServiceListHistoryProcedure, svc.ListHistory, opts...),
	}
	return "/" + AdminServiceName + "/", router(routes)
}

// NewWatchServiceHandler builds an HTTP handler for the watch service.
func NewWatchServiceHandler(svc WatchServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	routes := map[string]http.Handler{
		WatchServiceWatchProcedure: connect.NewServerStreamHandler(WatchServiceWatchProcedure, svc.Watch, opts...),
	}
	return "/" + WatchServiceName + "/", router(routes)
}

// AdminServiceClient is a client for the admin service.
type AdminServiceClient struct {
	getStatus   *connect.Client[pacerv1.GetStatusRequest, pacerv1.GetStatusResponse]
	start       *connect.Client[pacerv1.StartRequest, pacerv1.StartResponse]
	pause       *connect.Client[pacerv1.PauseRequest, pacerv1.PauseResponse]
	resume      *connect.Client[pacerv1.ResumeRequest, pacerv1.ResumeResponse]
	stop        *connect.Client[pacerv1.StopRequest, pacerv1.StopResponse]
	reset       *connect.Client[pacerv1.ResetRequest, pacerv1.ResetResponse]
	setShape    *connect.Client[pacerv1.SetShapeRequest, pacerv1.SetShapeResponse]
	setPlan     *connect.Client[pacerv1.SetPlanRequest, pacerv1.SetPlanResponse]
	listHistory *connect.Client[pacerv1.ListHistoryRequest, pacerv1.ListHistoryResponse]
}

// NewAdminServiceClient creates an admin service client for the server at
// baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = withClientCodec(opts)
	return &AdminServiceClient{
		getStatus:   connect.NewClient[pacerv1.GetStatusRequest, pacerv1.GetStatusResponse](httpClient, baseURL+AdminServiceGetStatusProcedure, opts...),
		start:       connect.NewClient[pacerv1.StartRequest, pacerv1.StartResponse](httpClient, baseURL+AdminServiceStartProcedure, opts...),
		pause:       connect.NewClient[pacerv1.PauseRequest, pacerv1.PauseResponse](httpClient, baseURL+AdminServicePauseProcedure, opts...),
		resume:      connect.NewClient[pacerv1.ResumeRequest, pacerv1.ResumeResponse](httpClient, baseURL+AdminServiceResumeProcedure, opts...),
		stop:        connect.NewClient[pacerv1.StopRequest, pacerv1.StopResponse](httpClient, baseURL+AdminServiceStopProcedure, opts...),
		reset:       connect.NewClient[pacerv1.ResetRequest, pacerv1.ResetResponse](httpClient, baseURL+AdminServiceResetProcedure, opts...),
		setShape:    connect.NewClient[pacerv1.SetShapeRequest, pacerv1.SetShapeResponse](httpClient, baseURL+AdminServiceSetShapeProcedure, opts...),
		setPlan:     connect.NewClient[pacerv1.SetPlanRequest, pacerv1.SetPlanResponse](httpClient, baseURL+AdminServiceSetPlanProcedure, opts...),
		listHistory: connect.NewClient[pacerv1.ListHistoryRequest, pacerv1.ListHistoryResponse](httpClient, baseURL+AdminServiceListHistoryProcedure, opts...),
	}
}

func (c *AdminServiceClient) GetStatus(ctx context.Context, req *connect.Request[pacerv1.GetStatusRequest]) (*connect.Response[pacerv1.GetStatusResponse], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Start(ctx context.Context, req *connect.Request[pacerv1.StartRequest]) (*connect.Response[pacerv1.StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Pause(ctx context.Context, req *connect.Request[pacerv1.PauseRequest]) (*connect.Response[pacerv1.PauseResponse], error) {
	return c.pause.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Resume(ctx context.Context, req *connect.Request[pacerv1.ResumeRequest]) (*connect.Response[pacerv1.ResumeResponse], error) {
	return c.resume.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Stop(ctx context.Context, req *connect.Request[pacerv1.StopRequest]) (*connect.Response[pacerv1.StopResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Reset(ctx context.Context, req *connect.Request[pacerv1.ResetRequest]) (*connect.Response[pacerv1.ResetResponse], error) {
	return c.reset.CallUnary(ctx, req)
}

func (c *AdminServiceClient) SetShape(ctx context.Context, req *connect.Request[pacerv1.SetShapeRequest]) (*connect.Response[pacerv1.SetShapeResponse], error) {
	return c.setShape.CallUnary(ctx, req)
}

func (c *AdminServiceClient) SetPlan(ctx context.Context, req *connect.Request[pacerv1.SetPlanRequest]) (*connect.Response[pacerv1.SetPlanResponse], error) {
	return c.setPlan.CallUnary(ctx, req)
}

func (c *AdminServiceClient) ListHistory(ctx context.Context, req *connect.Request[pacerv1.ListHistoryRequest]) (*connect.Response[pacerv1.ListHistoryResponse], error) {
	return c.listHistory.CallUnary(ctx, req)
}

// WatchServiceClient is a client for the watch service.
type WatchServiceClient struct {
	watch *connect.Client[pacerv1.WatchRequest, pacerv1.Notification]
}

// NewWatchServiceClient creates a watch service client for the server at
// baseURL.
func NewWatchServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *WatchServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &WatchServiceClient{
		watch: connect.NewClient[pacerv1.WatchRequest, pacerv1.Notification](httpClient, baseURL+WatchServiceWatchProcedure, withClientCodec(opts)...),
	}
}

func (c *WatchServiceClient) Watch(ctx context.Context, req *connect.Request[pacerv1.WatchRequest]) (*connect.ServerStreamForClient[pacerv1.Notification], error) {
	return c.watch.CallServerStream(ctx, req)
}

func withCodec(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(pacerv1.JSONCodec{})}, opts...)
}

func withClientCodec(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(pacerv1.JSONCodec{})}, opts...)
}

func router(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
