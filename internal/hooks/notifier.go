package hooks

import (
	"context"

	"github.com/apptrail-sh/podrun/internal/model"
)

type EventPublisher interface {
	Publish(ctx context.Context, update model.RunUpdate) error
}
