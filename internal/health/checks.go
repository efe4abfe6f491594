package health

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// Names of the built-in checks.
const (
	CheckRefiner   = "refiner"
	CheckGenerator = "generator"
)

// Pinger is a backend that can be probed directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a Pinger.
func PingCheck(p Pinger) Check {
	return p.Ping
}

// ModelSource resolves a chat model by provider name.
type ModelSource interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// ModelCheck verifies that the provider's model can be initialized, which
// covers credential resolution. It does not call the model.
func ModelCheck(src ModelSource, provider string) Check {
	return func(ctx context.Context) error {
		_, err := src.Get(ctx, provider)
		return err
	}
}
