package agentsdk_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soorma-platform/soorma/pkg/agentsdk"
	"github.com/soorma-platform/soorma/pkg/envelope"
)

func TestBuilder_BuildProducesNonNilTable(t *testing.T) {
	table := agentsdk.NewBuilder().
		On(envelope.TopicPlanEvents, "plan.created", func(ctx context.Context, env *envelope.Envelope) error {
			return nil
		}).
		OnTopic(envelope.TopicTaskEvents, func(ctx context.Context, env *envelope.Envelope) error {
			return nil
		}).
		Build()

	assert.NotNil(t, table)
}
