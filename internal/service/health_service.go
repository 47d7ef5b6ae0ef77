package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/pkg/esearch"
	"compliance-rag-be/pkg/graph"
)

const healthProbeTimeout = 5 * time.Second

type IHealthService interface {
	Check() dto.HealthResponse
	Detailed(ctx context.Context) dto.DetailedHealthResponse
}

type healthService struct {
	db     *gorm.DB
	cache  *redis.Client
	search esearch.ISearchClient
	engine graph.IGraphClient
}

func NewHealthService(db *gorm.DB, cache *redis.Client, search esearch.ISearchClient, engine graph.IGraphClient) IHealthService {
	return &healthService{
		db:     db,
		cache:  cache,
		search: search,
		engine: engine,
	}
}

func (s *healthService) Check() dto.HealthResponse {
	return dto.HealthResponse{Status: "ok"}
}

// Detailed probes every backend concurrently. Disabled backends are
// reported as such rather than counted against readiness.
func (s *healthService) Detailed(ctx context.Context) dto.DetailedHealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	probes := map[string]func(context.Context) error{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if s.cache != nil {
		probes["redis"] = func(ctx context.Context) error {
			return s.cache.Ping(ctx).Err()
		}
	}
	if s.search != nil {
		probes["elasticsearch"] = s.search.Ping
	}
	if s.engine != nil {
		probes["neo4j"] = s.engine.Ping
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	components := make(map[string]dto.ComponentHealth, len(probes))

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe func(context.Context) error) {
			defer wg.Done()
			health := dto.ComponentHealth{Status: "ok"}
			if err := probe(ctx); err != nil {
				health = dto.ComponentHealth{Status: "unavailable", Error: err.Error()}
			}
			mu.Lock()
			components[name] = health
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	status := "ok"
	for _, health := range components {
		if health.Status != "ok" {
			status = "degraded"
			break
		}
	}
	return dto.DetailedHealthResponse{Status: status, Components: components}
}
