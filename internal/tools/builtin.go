package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/gosuda/coachlink/internal/domain"
)

// Built-in tool names understood by the agent service.
const (
	ToolQueryHealthData = "query_health_data"
	ToolPlanWidget      = "plan-widget"
	ToolGeneratePlan    = "generate_plan"
)

const planWidgetResult = "success"

// BuiltinDeps carries what the built-in handlers need.
type BuiltinDeps struct {
	Health domain.HealthRepository
	UserID string
	Now    func() time.Time
}

// RegisterBuiltins installs the handlers for every built-in tool.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r.Register(ToolQueryHealthData, QueryHealthData(deps.Health, deps.UserID, deps.Now))
	r.Register(ToolPlanWidget, PlanWidget())
	r.Register(ToolGeneratePlan, GeneratePlan())
}

// QueryHealthData shows the requested chart when asked to and answers with
// the call arguments plus a text summary of the matching samples.
func QueryHealthData(repo domain.HealthRepository, userID string, now func() time.Time) Handler {
	return func(ctx context.Context, req Request) (string, bool, error) {
		raw, err := decodeArgs(req.Call.Arguments)
		if err != nil {
			return "", false, err
		}
		var args HealthArgs
		if err := json.Unmarshal([]byte(req.Call.Arguments), &args); err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}

		if args.ShowUser {
			argsJSON, err := json.Marshal(raw)
			if err != nil {
				return "", false, fmt.Errorf("tools.QueryHealthData: %w", err)
			}
			req.Sink.Display(domain.Message{
				ID:      req.FrameID,
				Kind:    domain.KindVisualization,
				Role:    domain.RoleAgent,
				Content: string(argsJSON),
			})
		}

		if !req.ShouldRespond {
			return "", false, nil
		}
		if repo == nil {
			return "", false, fmt.Errorf("tools.QueryHealthData: no health repository configured")
		}

		w := ResolveWindow(args, now())
		q := domain.HealthQuery{
			UserID:     userID,
			SampleType: args.SampleType,
			Start:      w.Start,
			End:        w.End,
			Interval:   w.Interval,
		}
		if err := q.Validate(); err != nil {
			return "", false, fmt.Errorf("tools.QueryHealthData: %w", err)
		}

		samples, err := repo.Query(ctx, q)
		if err != nil {
			return "", false, fmt.Errorf("tools.QueryHealthData: %w", err)
		}

		content, err := withData(raw, FormatSummary(args, w, samples))
		if err != nil {
			return "", false, err
		}
		return content, true, nil
	}
}

// PlanWidget confirms a proposed plan and, once confirmed, shows the widget.
// Nothing is shown when no response is requested.
func PlanWidget() Handler {
	return func(_ context.Context, req Request) (string, bool, error) {
		raw, err := decodeArgs(req.Call.Arguments)
		if err != nil {
			return "", false, err
		}
		if !req.ShouldRespond {
			return "", false, nil
		}

		argsJSON, err := json.Marshal(raw)
		if err != nil {
			return "", false, fmt.Errorf("tools.PlanWidget: %w", err)
		}
		content, err := withData(raw, planWidgetResult)
		if err != nil {
			return "", false, err
		}

		widget, err := json.Marshal(struct {
			Args string                  `json:"args"`
			Data domain.WireToolResponse `json:"data"`
		}{
			Args: string(argsJSON),
			Data: domain.WireToolResponse{
				Type:       domain.KindNormal.String(),
				Role:       domain.RoleTool,
				Content:    content,
				ToolCallID: req.Call.ID,
				ID:         req.ResponseID,
			},
		})
		if err != nil {
			return "", false, fmt.Errorf("tools.PlanWidget: %w", err)
		}

		req.Sink.Display(domain.Message{
			ID:      req.FrameID,
			Kind:    domain.KindPlanWidget,
			Role:    domain.RoleAgent,
			Content: string(widget),
		})
		return content, true, nil
	}
}

// GeneratePlan is acknowledged but produces nothing; plan generation happens server side.
func GeneratePlan() Handler {
	return func(context.Context, Request) (string, bool, error) {
		return "", false, nil
	}
}

func decodeArgs(arguments string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(arguments), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}
	return raw, nil
}

// withData returns args with a data field added, serialized.
func withData(args map[string]any, data any) (string, error) {
	out := maps.Clone(args)
	out["data"] = data
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("tools.withData: %w", err)
	}
	return string(b), nil
}
