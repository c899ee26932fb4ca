// Package translator converts OpenTelemetry spans into Application Insights
// envelopes (SPEC_FULL §4.6).
package translator

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
)

// The stable HTTP semantic conventions in semconv v1.26.0 renamed
// http.method/http.url/http.status_code to http.request.method/url.full/
// http.response.status_code. This translator's wire contract is pinned to
// the legacy attribute names (SPEC_FULL §4.6), so those three are looked up
// by literal key; http.route kept its name across the rename and is taken
// from semconv.
const (
	attrComponent      = attribute.Key("component")
	attrHTTPMethod     = attribute.Key("http.method")
	attrHTTPPath       = attribute.Key("http.path")
	attrHTTPURL        = attribute.Key("http.url")
	attrHTTPStatusCode = attribute.Key("http.status_code")
)

var attrHTTPRoute = semconv.HTTPRouteKey

// RequestData is the Application Insights RequestData base_data payload
// (SERVER spans).
type RequestData struct {
	Ver          int               `json:"ver"`
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Duration     string            `json:"duration"`
	Success      bool              `json:"success"`
	ResponseCode string            `json:"responseCode"`
	URL          string            `json:"url,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// RemoteDependencyData is the Application Insights RemoteDependencyData
// base_data payload (CLIENT/INTERNAL/PRODUCER/CONSUMER spans).
type RemoteDependencyData struct {
	Ver        int               `json:"ver"`
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ResultCode string            `json:"resultCode"`
	Duration   string            `json:"duration"`
	Success    bool              `json:"success"`
	Data       string            `json:"data,omitempty"`
	Target     string            `json:"target,omitempty"`
	Type       string            `json:"type,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type linkRecord struct {
	OperationID string `json:"operation_Id"`
	ID          string `json:"id"`
}

// Translator converts spans into envelopes stamped with a fixed
// instrumentation key.
type Translator struct {
	ikey string
}

// New returns a Translator bound to ikey.
func New(ikey string) *Translator {
	return &Translator{ikey: ikey}
}

// Translate converts one span into one envelope per SPEC_FULL §4.6.
func (t *Translator) Translate(span sdktrace.ReadOnlySpan) (*envelope.Envelope, error) {
	sc := span.SpanContext()
	attrs := span.Attributes()

	method, hasMethod := lookupString(attrs, attrHTTPMethod)
	route, hasRoute := lookupString(attrs, attrHTTPRoute)
	path, hasPath := lookupString(attrs, attrHTTPPath)
	httpURL, hasURL := lookupString(attrs, attrHTTPURL)
	statusCode, hasStatusCode := lookupInt(attrs, attrHTTPStatusCode)
	component, _ := lookupString(attrs, attrComponent)

	properties := baseProperties(attrs)
	if links := linkProperties(span.Links()); links != "" {
		properties["_MS.links"] = links
	}

	duration := formatDuration(span.EndTime().Sub(span.StartTime()))
	spanID := sc.SpanID().String()

	var env *envelope.Envelope
	switch span.SpanKind() {
	case trace.SpanKindServer:
		env = t.translateServer(span, properties, spanID, duration, method, hasMethod, route, hasRoute, path, hasPath, httpURL, hasURL, statusCode, hasStatusCode)
	case trace.SpanKindClient:
		env = t.translateDependency(span, properties, spanID, duration, method, hasMethod, httpURL, hasURL, component, statusCode, hasStatusCode, "")
	default:
		// INTERNAL, PRODUCER, CONSUMER, and any future kind: treated like
		// INTERNAL, with the CLIENT HTTP branch available (SPEC_FULL §4.6
		// PRODUCER/CONSUMER supplement).
		env = t.translateDependency(span, properties, spanID, duration, method, hasMethod, httpURL, hasURL, component, statusCode, hasStatusCode, "InProc")
	}

	env.IKey = t.ikey
	env.Time = formatTimeMicros(span.StartTime())
	env.Tags[envelope.TagOperationID] = sc.TraceID().String()
	if parent := span.Parent(); parent.IsValid() {
		env.Tags[envelope.TagOperationParentID] = parent.SpanID().String()
	}
	return env, nil
}

func (t *Translator) translateServer(
	span sdktrace.ReadOnlySpan,
	properties map[string]string,
	spanID, duration string,
	method string, hasMethod bool,
	route string, hasRoute bool,
	path string, hasPath bool,
	httpURL string, hasURL bool,
	statusCode int64, hasStatusCode bool,
) *envelope.Envelope {
	env := envelope.New(t.ikey, envelope.NameRequest)

	// base_data.name stays unset without http.method; the span's own name
	// is never used for SERVER requests.
	name := ""
	if hasMethod {
		if hasRoute {
			name = method + " " + route
			env.Tags[envelope.TagOperationName] = name
		} else {
			name = method
		}
	}

	if hasMethod {
		// request.name prefers the route template, falling back to the
		// raw request path.
		if hasRoute {
			properties["request.name"] = method + " " + route
		} else if hasPath {
			properties["request.name"] = method + " " + path
		}
	}
	if hasURL {
		properties["request.url"] = httpURL
	}

	statusOK := span.Status().Code == codes.Ok
	responseCode := "0"
	success := statusOK
	if hasStatusCode {
		responseCode = fmt.Sprintf("%d", statusCode)
		success = success && statusCode < 400
	} else if !statusOK {
		responseCode = statusResultCode(span.Status())
	}

	data := &RequestData{
		Ver:          2,
		ID:           spanID,
		Name:         name,
		Duration:     duration,
		Success:      success,
		ResponseCode: responseCode,
		Properties:   properties,
	}
	if hasURL {
		data.URL = httpURL
	}

	env.Data = &envelope.Data{BaseType: envelope.BaseTypeRequest, BaseData: data}
	return env
}

// translateDependency handles CLIENT and the INTERNAL/PRODUCER/CONSUMER
// group. forcedType, when non-empty ("InProc"), is used when the span has
// no HTTP signal; an empty forcedType means CLIENT semantics (type left
// empty absent HTTP signal).
func (t *Translator) translateDependency(
	span sdktrace.ReadOnlySpan,
	properties map[string]string,
	spanID, duration string,
	method string, hasMethod bool,
	httpURL string, hasURL bool,
	component string,
	statusCode int64, hasStatusCode bool,
	forcedType string,
) *envelope.Envelope {
	env := envelope.New(t.ikey, envelope.NameRemoteDependency)

	statusOK := span.Status().Code == codes.Ok
	data := &RemoteDependencyData{
		Ver:        2,
		ID:         spanID,
		Duration:   duration,
		Properties: properties,
	}

	if component == "http" || hasURL {
		u, _ := url.Parse(httpURL)
		host, path := "", ""
		if u != nil {
			host = u.Host
			path = u.Path
		}

		name := span.Name()
		if hasMethod {
			name = method + "/" + path
		}

		resultCode := "0"
		success := statusOK
		if hasStatusCode {
			resultCode = fmt.Sprintf("%d", statusCode)
			success = success && statusCode < 400
		} else if !statusOK {
			resultCode = statusResultCode(span.Status())
		}

		data.Type = "HTTP"
		data.Data = httpURL
		data.Target = host
		data.Name = name
		data.ResultCode = resultCode
		data.Success = success
	} else {
		data.Type = forcedType
		data.Name = span.Name()
		data.ResultCode = statusResultCode(span.Status())
		data.Success = statusOK
	}

	env.Data = &envelope.Data{BaseType: envelope.BaseTypeRemoteDependency, BaseData: data}
	return env
}

func statusResultCode(status sdktrace.Status) string {
	if status.Code == codes.Ok {
		return "0"
	}
	return "2"
}

func lookupString(attrs []attribute.KeyValue, key attribute.Key) (string, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func lookupInt(attrs []attribute.KeyValue, key attribute.Key) (int64, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.AsInt64(), true
		}
	}
	return 0, false
}

// baseProperties copies every attribute whose key does not begin with
// "http." into a fresh properties map, verbatim (including "component").
func baseProperties(attrs []attribute.KeyValue) map[string]string {
	properties := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		if strings.HasPrefix(string(kv.Key), "http.") {
			continue
		}
		properties[string(kv.Key)] = kv.Value.Emit()
	}
	return properties
}

func linkProperties(links []sdktrace.Link) string {
	if len(links) == 0 {
		return ""
	}
	records := make([]linkRecord, 0, len(links))
	for _, l := range links {
		records = append(records, linkRecord{
			OperationID: l.SpanContext.TraceID().String(),
			ID:          l.SpanContext.SpanID().String(),
		})
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// formatTimeMicros renders t as ISO-8601 UTC with microsecond precision
// (YYYY-MM-DDTHH:MM:SS.ffffffZ), per SPEC_FULL §4.6. This is the form
// Translate writes to Envelope.Time; envelope.FormatTime's millisecond form
// is not used by the translator.
func formatTimeMicros(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// formatDuration renders a span duration as D.HH:MM:SS.fff, D being whole
// days.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%d.%02d:%02d:%02d.%03d", days, hours, minutes, seconds, millis)
}
