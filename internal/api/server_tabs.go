package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/types"
)

func registerTabHandlers(api huma.API, svc Service) {
	type listTabsOutput struct {
		Body struct {
			Tabs []cdpcontrol.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List page tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type listFramesOutput struct {
		Body struct {
			TabID  string                 `json:"tab_id"`
			Frames []cdpcontrol.FrameInfo `json:"frames"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-frames", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/frames", Summary: "List frames with their indexes", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*listFramesOutput, error) {
			frames, err := svc.Frames(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listFramesOutput{}
			out.Body.TabID = input.TabID
			out.Body.Frames = frames
			return out, nil
		})

	type elementInput struct {
		TabID string `path:"tab_id"`
		Body  types.ElementSelection
	}
	for _, op := range []struct {
		id, action, summary string
	}{
		{"click-element", controller.ActionClick, "Replay a realistic click on an element"},
		{"hide-element", controller.ActionHide, "Hide an element (visibility: hidden)"},
		{"show-element", controller.ActionShow, "Show a previously hidden element"},
	} {
		action := op.action
		huma.Register(api, huma.Operation{OperationID: op.id, Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/elements/" + action, Summary: op.summary, Tags: []string{"Elements"}},
			func(ctx context.Context, input *elementInput) (*statusOutput, error) {
				status, err := svc.ElementAction(ctx, input.TabID, action, input.Body)
				if err != nil {
					return nil, mapErr(err)
				}
				out := &statusOutput{}
				out.Body.TabID = input.TabID
				out.Body.Status = status
				return out, nil
			})
	}
}
