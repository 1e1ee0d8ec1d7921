package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/clickshot/internal/cdp"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/types"
)

func registerSelectionHandlers(api huma.API, svc Service) {
	type roleInput struct {
		TabID string `path:"tab_id"`
		Role  string `path:"role" doc:"next or previous"`
	}

	type selectionsOutput struct {
		Body controller.Selections
	}
	huma.Register(api, huma.Operation{OperationID: "get-selections", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/selections", Summary: "Get stored next/previous selections", Tags: []string{"Selections"}},
		func(ctx context.Context, input *tabIDInput) (*selectionsOutput, error) {
			sel, err := svc.GetSelections(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &selectionsOutput{Body: sel}, nil
		})

	type selectionOutput struct {
		Body types.ElementSelection
	}
	huma.Register(api, huma.Operation{OperationID: "put-selection", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/selections/{role}", Summary: "Store a selector entered by hand", Tags: []string{"Selections"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Role  string `path:"role"`
			Body  struct {
				Selector string `json:"selector" required:"true" doc:"CSS selector"`
				FrameID  int    `json:"frameId,omitempty" doc:"Frame index, 0 for the main frame"`
			}
		}) (*selectionOutput, error) {
			sel, err := svc.PutSelection(ctx, input.TabID, input.Role, types.ElementSelection{Selector: input.Body.Selector, FrameID: input.Body.FrameID})
			if err != nil {
				return nil, mapErr(err)
			}
			return &selectionOutput{Body: sel}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-selection", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}/selections/{role}", Summary: "Forget a stored selection", Tags: []string{"Selections"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *roleInput) (*struct{}, error) {
			if err := svc.DeleteSelection(ctx, input.TabID, input.Role); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})

	type resolveOutput struct {
		Body cdp.Resolution
	}
	huma.Register(api, huma.Operation{OperationID: "resolve-selection", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/selections/{role}/resolve", Summary: "Check a stored selection against the live DOM", Tags: []string{"Selections"}},
		func(ctx context.Context, input *roleInput) (*resolveOutput, error) {
			res, err := svc.ResolveSelection(ctx, input.TabID, input.Role)
			if err != nil {
				return nil, mapErr(err)
			}
			return &resolveOutput{Body: res}, nil
		})

	type recorderOutput struct {
		Body struct {
			TabID  string `json:"tab_id"`
			Mode   string `json:"mode"`
			Frames int    `json:"frames" doc:"Frames the recorder was installed into"`
		}
	}
	for _, op := range []struct {
		mode, summary string
	}{
		{controller.RecorderStartSelection, "Pick an element: hover to outline, click to select"},
		{controller.RecorderStartRecordingNext, "Record the next element on the first real click"},
		{controller.RecorderStartRecordingPrev, "Record the previous element on the first real click"},
	} {
		mode := op.mode
		huma.Register(api, huma.Operation{OperationID: mode, Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/selection/" + mode, Summary: op.summary, Tags: []string{"Recorder"}},
			func(ctx context.Context, input *tabIDInput) (*recorderOutput, error) {
				frames, err := svc.StartRecorder(ctx, input.TabID, mode)
				if err != nil {
					return nil, mapErr(err)
				}
				out := &recorderOutput{}
				out.Body.TabID = input.TabID
				out.Body.Mode = mode
				out.Body.Frames = frames
				return out, nil
			})
	}

	huma.Register(api, huma.Operation{OperationID: "cancel-selection", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/selection/cancel", Summary: "Remove recorder listeners from every frame", Tags: []string{"Recorder"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			if err := svc.CancelRecorder(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.TabID = input.TabID
			out.Body.Status = "cancelled"
			return out, nil
		})
}
