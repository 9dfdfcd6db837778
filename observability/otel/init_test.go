package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExportersShutsDownCleanly(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "vitrined", ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "market.purchase", attribute.Int64("productId", 1))
	span.End()
	if ctx == nil {
		t.Fatalf("expected derived context")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("api-key=abc, tenant = market ,broken,=skip")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers["api-key"] != "abc" || headers["tenant"] != "market" {
		t.Fatalf("unexpected headers %v", headers)
	}
}
