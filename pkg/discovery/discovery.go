package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/campusmart/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const leaseTTLSeconds = 30

// Registry announces this instance under a leased etcd key so load balancers
// and sibling services can find live marketplace nodes. The lease keep-alive
// runs until the registering context is cancelled.
type Registry struct {
	client  *clientv3.Client
	config  *config.EtcdConfig
	leaseID clientv3.LeaseID
}

type Instance struct {
	Name string
	Host string
	Port int
}

func (i *Instance) addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

func NewRegistry(cfg *config.EtcdConfig) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &Registry{client: cli, config: cfg}, nil
}

func (r *Registry) Register(ctx context.Context, instance *Instance) error {
	key := fmt.Sprintf("%s%s/%s", r.config.Prefix, instance.Name, instance.addr())

	lease, err := r.client.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID

	if _, err = r.client.Put(ctx, key, instance.addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	return nil
}

// Discover lists the live instances registered under a service name.
func (r *Registry) Discover(ctx context.Context, serviceName string) ([]*Instance, error) {
	key := fmt.Sprintf("%s%s/", r.config.Prefix, serviceName)

	resp, err := r.client.Get(ctx, key, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", serviceName, err)
	}

	instances := make([]*Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		host, port := splitAddr(string(kv.Value))
		instances = append(instances, &Instance{
			Name: serviceName,
			Host: host,
			Port: port,
		})
	}
	return instances, nil
}

func (r *Registry) Deregister(ctx context.Context, instance *Instance) error {
	key := fmt.Sprintf("%s%s/%s", r.config.Prefix, instance.Name, instance.addr())
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to deregister instance: %w", err)
	}
	if r.leaseID != 0 {
		_, _ = r.client.Revoke(ctx, r.leaseID)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}

func splitAddr(addr string) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 0
	}
	port, _ := strconv.Atoi(addr[idx+1:])
	return addr[:idx], port
}
