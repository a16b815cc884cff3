package service

import (
	"context"

	"settingsvc/internal/bus"
	"settingsvc/internal/taskengine"
)

// isMutating reports whether method must serialize against readers and
// other writers (§4.3.1) versus running concurrently with other reads.
func isMutating(method string) bool {
	switch method {
	case "setSystemSettings", "setSystemSettingFactoryValue", "setSystemSettingValues",
		"setSystemSettingDesc", "setSystemSettingFactoryDesc", "resetSystemSettingDesc",
		"deleteSystemSettings", "resetSystemSettings":
		return true
	default:
		return false
	}
}

// call computes method's reply without touching the task engine; both Run
// (for a top-level request) and the batch sub-op path invoke it from
// inside an already-submitted task.
func (s *Service) call(ctx context.Context, sender, method string, params map[string]any) bus.Response {
	switch method {
	case "getSystemSettings", "getCurrentSettings":
		return s.handleGet(ctx, sender, params, false)
	case "getSystemSettingFactoryValue":
		return s.handleGet(ctx, sender, params, true)
	case "setSystemSettings":
		return s.handleSet(ctx, sender, params, false)
	case "setSystemSettingFactoryValue":
		return s.handleSet(ctx, sender, params, true)
	case "getSystemSettingValues":
		return s.handleGetValues(ctx, sender, params)
	case "setSystemSettingValues":
		return s.handleSetValues(ctx, params)
	case "getSystemSettingDesc":
		return s.handleGetDesc(sender, params)
	case "setSystemSettingDesc":
		return s.handleSetDesc(ctx, params, false)
	case "setSystemSettingFactoryDesc":
		return s.handleSetDesc(ctx, params, true)
	case "resetSystemSettingDesc":
		return s.handleResetDesc(params)
	case "deleteSystemSettings":
		return s.handleDelete(ctx, sender, params)
	case "resetSystemSettings":
		return s.handleReset(ctx, sender, params)
	case "batch":
		return s.handleBatch(ctx, sender, params)
	default:
		return bus.Response{ReturnValue: false, ErrorText: "unknown method: " + method}
	}
}

// handleBatch implements the `batch` envelope (§4.3.3, §6.1): each
// sub-operation is dispatched through the task engine's own Batch fan-
// out/fan-in so it shares the readers-writer discipline with every other
// in-flight request, then positional replies are folded back into one
// Results list.
func (s *Service) handleBatch(ctx context.Context, sender string, params map[string]any) bus.Response {
	rawOps, _ := params["operations"].([]any)
	ops := make([]taskengine.BatchOp, 0, len(rawOps))
	for _, raw := range rawOps {
		opMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		method := paramString(opMap, "method")
		subParams := paramAnyMap(opMap, "params")
		ops = append(ops, taskengine.BatchOp{
			Mutating: isMutating(method),
			Run: func(opCtx context.Context) (any, error) {
				return s.call(opCtx, sender, method, subParams), nil
			},
		})
	}

	results, err := s.engine.Batch(ctx, ops)
	if err != nil {
		return bus.Response{ReturnValue: false, ErrorText: "internal error"}
	}

	out := make([]map[string]any, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = map[string]any{"returnValue": false, "errorText": r.Err.Error()}
			continue
		}
		resp, _ := r.Reply.(bus.Response)
		out[i] = map[string]any{
			"returnValue": resp.ReturnValue,
			"category":    resp.Category,
			"app_id":      resp.AppID,
			"settings":    resp.Settings,
			"results":     resp.Results,
			"completed":   resp.Completed,
			"errorKey":    resp.ErrorKey,
			"errorText":   resp.ErrorText,
		}
	}
	return bus.Response{ReturnValue: true, Results: out, Subscribed: paramBool(params, "subscribe")}
}

// Run is the single bus-dispatch loop: every inbound request becomes one
// task-engine submission, classified mutating or not by method name
// (§4.3.1). It blocks until ctx is cancelled or the bus's request channel
// closes.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-s.bus.Requests():
			if !ok {
				return
			}
			s.dispatch(ctx, req)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, req bus.Request) {
	method, sender, params := req.Method, req.Sender, req.Params
	_, err := s.engine.Submit(isMutating(method), "", func(taskCtx context.Context, _ *taskengine.Task) error {
		resp := s.call(taskCtx, sender, method, params)
		if err := s.bus.Reply(req, resp); err != nil {
			s.log.Warn("service: reply failed", "sender", sender, "method", method, "error", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("service: failed to enqueue request", "method", method, "error", err)
	}
}
