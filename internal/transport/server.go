package transport

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server exposes the standard gRPC health service for one relay process.
type Server struct {
	grpc    *grpc.Server
	lis     net.Listener
	health  *health.Server
	service string
}

// StartServer listens on addr. Both the named service and the overall ("")
// status start NOT_SERVING until the loop marks itself ready.
func StartServer(addr, service string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		lis:     lis,
		health:  health.NewServer(),
		service: service,
	}
	s.SetServing(false)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, st)
	s.health.SetServingStatus("", st)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
