package claim

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/satoshigo/hunt/internal/claim"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
