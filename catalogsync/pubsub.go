package catalogsync

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"

	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/utils"
)

// PublishSyncRun hands a queued run to the Pub/Sub topic for asynchronous
// execution. Callers fall back to inline execution when this fails.
func PublishSyncRun(ctx context.Context, runId uint, triggeredBy string) error {
	topicName := utils.EnvOrDefault("CATALOG_SYNC_TOPIC", "catalog-sync")

	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if utils.BoolFromEnv("CATALOG_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:       runId,
		TriggeredBy: triggeredBy,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}
