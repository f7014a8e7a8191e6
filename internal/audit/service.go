// Package audit records admin write actions as domain events.
package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/events"
)

// Entry is the payload of one audit event.
type Entry struct {
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resourceId,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Query      string `json:"query,omitempty"`
}

// Service persists audit entries through the event bus.
type Service struct {
	Bus     *events.Bus
	Enabled bool
}

// Record stores an entry for req. route is the matched route pattern; resourceID is the
// primary path parameter, if any.
func (s Service) Record(ctx context.Context, req *http.Request, route, resourceID string, status int) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Bus == nil {
		return errors.New("audit: bus not configured")
	}
	actor, ok := common.Admin(req.Context())
	if !ok || strings.TrimSpace(actor) == "" {
		actor = "anonymous"
	}
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}
	entry := Entry{
		Actor:      actor,
		Action:     buildAction(req.Method, route),
		Resource:   buildResource(route),
		ResourceID: strings.TrimSpace(resourceID),
		Method:     req.Method,
		Path:       req.URL.Path,
		Status:     status,
		IP:         common.ClientIP(req),
		UserAgent:  strings.TrimSpace(req.Header.Get("User-Agent")),
		RequestID:  strings.TrimSpace(req.Header.Get("X-Request-ID")),
		Query:      req.URL.RawQuery,
	}
	_, err := s.Bus.Emit(ctx, events.TopicAdminAction, entry.Resource, entry)
	return err
}

func buildAction(method, route string) string {
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

func buildResource(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	if len(segments) > 0 && segments[0] == "admin" {
		segments = segments[1:]
	}
	out := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "admin"
	}
	return strings.Join(out, ".")
}
