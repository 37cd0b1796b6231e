package server

import (
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"linkgate/internal/health"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: health.NewServer(nil)})
	if len(reg.services) != 1 || reg.services[0] != healthpb.Health_ServiceDesc.ServiceName {
		t.Errorf("services = %v, want [%s]", reg.services, healthpb.Health_ServiceDesc.ServiceName)
	}
}

func TestRegisterServices_NilHealthSkipped(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	if len(reg.services) != 0 {
		t.Errorf("services = %v, want none", reg.services)
	}
}

func TestNewGRPCServer_RegistersHealth(t *testing.T) {
	s := NewGRPCServer("key", Deps{Health: health.NewServer(nil)}, zerolog.Nop())
	defer s.Stop()
	if _, ok := s.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]; !ok {
		t.Error("health service not registered")
	}
}
