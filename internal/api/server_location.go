package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/clickshot/internal/controller"
)

func registerLocationHandlers(api huma.API, svc Service) {
	type locationOutput struct {
		Body controller.Location
	}
	huma.Register(api, huma.Operation{OperationID: "get-location", Method: http.MethodGet, Path: "/api/v1/location", Summary: "Get the save location", Tags: []string{"Location"}},
		func(ctx context.Context, input *struct{}) (*locationOutput, error) {
			loc, err := svc.GetLocation(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &locationOutput{Body: loc}, nil
		})

	type chooseOutput struct {
		Body struct {
			Chosen   bool                `json:"chosen" doc:"False when the selection was dismissed"`
			Location controller.Location `json:"location"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "choose-location", Method: http.MethodPost, Path: "/api/v1/location", Summary: "Grant a directory for saving screenshots", Description: "An empty path is treated as a dismissed picker.", Tags: []string{"Location"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Path string `json:"path" doc:"Directory to save into; ~ is expanded"`
			}
		}) (*chooseOutput, error) {
			chosen, loc, err := svc.ChooseLocation(ctx, input.Body.Path)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &chooseOutput{}
			out.Body.Chosen = chosen
			out.Body.Location = loc
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-location", Method: http.MethodDelete, Path: "/api/v1/location", Summary: "Forget the directory and save through downloads", Tags: []string{"Location"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *struct{}) (*struct{}, error) {
			if err := svc.ClearLocation(ctx); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
