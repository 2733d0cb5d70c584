package imports

import (
	"DebtPortfolioSaas/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ImportsService struct {
	config map[string]interface{}
	pool   *pgxpool.Pool
}

func NewImportsService(cfg map[string]interface{}, pool *pgxpool.Pool) serviceiface.Service {
	return &ImportsService{config: cfg, pool: pool}
}

func (s *ImportsService) Name() string {
	return "imports"
}

func (s *ImportsService) Start() error {
	go StartImportsService(s.pool)
	return nil
}

func (s *ImportsService) Stop() error {
	return nil
}
