// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete store, so the same
// code runs on SQLite, on Postgres, and on the in-memory fakes in the tests.
//
// Every method that touches the store opens an OpenTelemetry span. With no
// tracer provider installed the spans are no-ops, but the trace and span IDs
// still flow into the logs through internal/logging.
package service

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/sakif/study-tracker/internal/service")

// plainText strips every tag from user-supplied free text. bluemonday also
// HTML-escapes what it keeps; the text is rendered as JSON, not HTML, so
// the entities are decoded again.
var plainText = bluemonday.StrictPolicy()

func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}

// Clock returns the current time. Tests replace it to move through the
// verification window without sleeping.
type Clock func() time.Time

// fail marks span as failed. It returns err so call sites stay one line.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
