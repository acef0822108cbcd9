package query

import (
	"context"

	"github.com/sentencevault/sentence-service/shared/models"
)

type UsageReader interface {
	GetUsage(ctx context.Context) (*models.UsageView, error)
}

// UsageQueryService reads the aggregate usage projection. The figures trail
// the write store by however far the consumer group lags behind.
type UsageQueryService struct {
	readRepo UsageReader
}

func NewUsageQueryService(readRepo UsageReader) *UsageQueryService {
	return &UsageQueryService{readRepo: readRepo}
}

func (s *UsageQueryService) GetUsage(ctx context.Context) (*models.UsageView, error) {
	return s.readRepo.GetUsage(ctx)
}
