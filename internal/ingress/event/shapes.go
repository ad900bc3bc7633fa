package event

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vietddude/relay/internal/core/domain"
)

// detector pairs a shape predicate with its parser. Detectors are evaluated
// in declaration order; the first match wins, and the fallback always
// matches.
type detector struct {
	shape string
	match func(event map[string]any) bool
	parse func(event map[string]any) (domain.Invocation, error)
}

func (a *Adapter) buildDetectors() []detector {
	return []detector{
		{shape: "http", match: isHTTPShape, parse: a.parseHTTP},
		{shape: "sqs", match: isBatchShape, parse: a.parseBatch},
		{shape: "sns", match: isNotificationShape, parse: a.parseNotification},
		{shape: "direct", match: isExplicitShape, parse: a.parseExplicit},
		{shape: "fallback", match: func(map[string]any) bool { return true }, parse: a.parseFallback},
	}
}

func isHTTPShape(event map[string]any) bool {
	_, hasMethod := event["httpMethod"].(string)
	_, hasPath := event["path"].(string)
	return hasMethod && hasPath
}

// recordSource returns the event source tag of the first record, if any.
// SQS records spell the field eventSource, SNS records EventSource.
func recordSource(event map[string]any) string {
	records, ok := event["Records"].([]any)
	if !ok || len(records) == 0 {
		return ""
	}
	first, ok := records[0].(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := first["eventSource"].(string); ok {
		return s
	}
	if s, ok := first["EventSource"].(string); ok {
		return s
	}
	return ""
}

func isBatchShape(event map[string]any) bool {
	return recordSource(event) == "aws:sqs"
}

func isNotificationShape(event map[string]any) bool {
	return recordSource(event) == "aws:sns"
}

func isExplicitShape(event map[string]any) bool {
	service, _ := event["service"].(string)
	action, _ := event["action"].(string)
	return service != "" && action != ""
}

// parseHTTP maps a gateway-shaped event onto the REST conventions: the first
// path segment is the service, the verb picks the action, a second segment
// is the entity id. Headers, query and path parameters are merged into the
// parameters with body fields taking precedence.
func (a *Adapter) parseHTTP(event map[string]any) (domain.Invocation, error) {
	method := strings.ToUpper(stringField(event, "httpMethod"))
	path := stringField(event, "path")

	segments := splitPath(path)
	if len(segments) == 0 || len(segments) > 2 {
		return domain.Invocation{}, domain.Validationf("unroutable path %q", path)
	}

	service := segments[0]
	var action, id string
	switch {
	case len(segments) == 1 && method == http.MethodGet:
		action = "list"
	case len(segments) == 1 && method == http.MethodPost:
		action = "create"
	case len(segments) == 2 && method == http.MethodGet:
		action, id = "get", segments[1]
	case len(segments) == 2 && method == http.MethodPut:
		action, id = "update", segments[1]
	case len(segments) == 2 && method == http.MethodDelete:
		action, id = "remove", segments[1]
	default:
		return domain.Invocation{}, domain.Validationf("no action for %s %s", method, path)
	}

	params := map[string]any{}
	mergeMapField(params, event, "headers")
	mergeMapField(params, event, "queryStringParameters")
	mergeMapField(params, event, "pathParameters")
	mergeBody(params, stringField(event, "body"))
	if id != "" {
		params["id"] = id
	}

	meta := map[string]any{
		domain.MetaTransport: "event",
		"shape":              "http",
		"http_method":        method,
		"path":               path,
	}
	return domain.NewInvocation(domain.NewActionKey(service, action), params, meta), nil
}

// parseBatch routes the first record of a message-batch event to the
// configured queue action.
func (a *Adapter) parseBatch(event map[string]any) (domain.Invocation, error) {
	records := event["Records"].([]any)
	first, _ := records[0].(map[string]any)

	params := map[string]any{}
	mergeBody(params, stringField(first, "body"))

	meta := map[string]any{
		domain.MetaTransport: "event",
		"shape":              "sqs",
		"batch_size":         len(records),
	}
	if id := stringField(first, "messageId"); id != "" {
		meta["message_id"] = id
	}
	return domain.NewInvocation(a.queueAction, params, meta), nil
}

// parseNotification routes a pub/sub notification to the configured
// notification action, with the embedded message decoded as the parameters.
func (a *Adapter) parseNotification(event map[string]any) (domain.Invocation, error) {
	records := event["Records"].([]any)
	first, _ := records[0].(map[string]any)
	sns, _ := first["Sns"].(map[string]any)

	params := map[string]any{}
	mergeBody(params, stringField(sns, "Message"))
	if subject := stringField(sns, "Subject"); subject != "" {
		if _, ok := params["Subject"]; !ok {
			params["Subject"] = subject
		}
	}

	meta := map[string]any{
		domain.MetaTransport: "event",
		"shape":              "sns",
	}
	if id := stringField(sns, "MessageId"); id != "" {
		meta["message_id"] = id
	}
	return domain.NewInvocation(a.notifyAction, params, meta), nil
}

// parseExplicit passes a direct invocation descriptor through unchanged.
func (a *Adapter) parseExplicit(event map[string]any) (domain.Invocation, error) {
	service := stringField(event, "service")
	action := stringField(event, "action")

	params, _ := event["params"].(map[string]any)

	meta := map[string]any{}
	if m, ok := event["meta"].(map[string]any); ok {
		for k, v := range m {
			meta[k] = v
		}
	}
	meta[domain.MetaTransport] = "event"
	meta["shape"] = "direct"

	return domain.NewInvocation(domain.NewActionKey(service, action), params, meta), nil
}

// parseFallback routes anything unrecognized to the default action with the
// whole payload as parameters.
func (a *Adapter) parseFallback(event map[string]any) (domain.Invocation, error) {
	params := make(map[string]any, len(event))
	for k, v := range event {
		params[k] = v
	}
	meta := map[string]any{
		domain.MetaTransport: "event",
		"shape":              "fallback",
	}
	return domain.NewInvocation(a.defaultAction, params, meta), nil
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mergeMapField(params map[string]any, event map[string]any, key string) {
	m, ok := event[key].(map[string]any)
	if !ok {
		return
	}
	for k, v := range m {
		params[k] = v
	}
}

// mergeBody decodes body as JSON. Object fields are merged over the existing
// parameters; any other payload (array, scalar, or unparseable text) is kept
// verbatim under "body".
func mergeBody(params map[string]any, body string) {
	if body == "" {
		return
	}
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		params["body"] = body
		return
	}
	if obj, ok := decoded.(map[string]any); ok {
		for k, v := range obj {
			params[k] = v
		}
		return
	}
	params["body"] = decoded
}
