package rpc

import (
	"fmt"
	"net"

	"ScreenDetAgent/capture"
	"ScreenDetAgent/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CaptureService is the health service name tracking the capture session.
const CaptureService = "screendet.capture"

// HealthServer exposes grpc.health.v1. The overall status stays SERVING
// while the process runs; CaptureService follows the capture state.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

func StartHealthServer(port int) (*HealthServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on %d: %w", port, err)
	}
	h := &HealthServer{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
	}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.health.SetServingStatus(CaptureService, healthpb.HealthCheckResponse_NOT_SERVING)
	go func() {
		if err := h.srv.Serve(lis); err != nil {
			logger.Log().Error("health server stopped", zap.Error(err))
		}
	}()
	logger.Log().Info("health server listening", zap.String("addr", lis.Addr().String()))
	return h, nil
}

func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// SetCaptureState maps a capture state onto the serving status. A degraded
// session still delivers frames and counts as serving.
func (h *HealthServer) SetCaptureState(s capture.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	switch s {
	case capture.StateReady, capture.StateCapturing, capture.StateDegraded:
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(CaptureService, status)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
