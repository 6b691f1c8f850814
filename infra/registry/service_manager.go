package registry

import (
	"fmt"
	"log/slog"
	"sync"
)

// ServiceManager registers one service on Start and deregisters it on Stop.
// Shutdown signals are handled by the caller.
type ServiceManager struct {
	registry      *ConsulRegistry
	serviceConfig *ServiceConfig
	stopOnce      sync.Once
}

func NewServiceManager(consulConfig *ConsulConfig, serviceConfig *ServiceConfig) (*ServiceManager, error) {
	consulRegistry, err := NewConsulRegistry(consulConfig)
	if err != nil {
		return nil, err
	}

	return &ServiceManager{
		registry:      consulRegistry,
		serviceConfig: serviceConfig,
	}, nil
}

func (sm *ServiceManager) Start() error {
	if err := sm.registry.RegisterService(sm.serviceConfig); err != nil {
		return fmt.Errorf("start service manager: %w", err)
	}
	return nil
}

func (sm *ServiceManager) Stop() {
	sm.stopOnce.Do(func() {
		if err := sm.registry.DeregisterService(sm.serviceConfig.ID); err != nil {
			slog.Error("deregister failed", "id", sm.serviceConfig.ID, "error", err)
		}
	})
}

func (sm *ServiceManager) DiscoverService(serviceName string) ([]*ServiceInstance, error) {
	return sm.registry.DiscoverService(serviceName)
}
