package utils

import (
	"context"

	"github.com/tiendamascotas/catalog_sync/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyRunId         = appctx.ContextKeyRunId
	ContextKeyTriggeredBy   = appctx.ContextKeyTriggeredBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetRunIdFromContext(ctx context.Context) (uint, bool) {
	return appctx.GetUint(ctx, ContextKeyRunId)
}

func SetRunIdInContext(ctx context.Context, runId uint) context.Context {
	return appctx.Set(ctx, ContextKeyRunId, runId)
}

func GetTriggeredByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTriggeredBy)
}

func SetTriggeredByInContext(ctx context.Context, triggeredBy string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggeredBy, triggeredBy)
}
