package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/events"
)

var recordModes = map[string]string{
	"pick": controller.RecorderStartSelection,
	"next": controller.RecorderStartRecordingNext,
	"prev": controller.RecorderStartRecordingPrev,
}

func newRecordCmd(open opener) *cobra.Command {
	var (
		tabID   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:       "record pick|next|prev",
		Short:     "Install the recorder in a tab and wait for the element you click",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"pick", "next", "prev"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := recordModes[args[0]]
			if !ok {
				return fmt.Errorf("unknown record mode %q", args[0])
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id, ch := a.Events.Subscribe()
			defer a.Events.Unsubscribe(id)

			frames, err := a.Service.StartRecorder(cmd.Context(), tabID, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorder installed in %d frame(s); click the element in the browser\n", frames)

			deadline := time.After(timeout)
			for {
				select {
				case evt := <-ch:
					if evt.TabID != tabID || !isSelectionTag(evt.Tag) {
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", evt.Tag, evt.Data)
					return nil
				case <-deadline:
					if err := a.Service.CancelRecorder(cmd.Context(), tabID); err != nil {
						return fmt.Errorf("no selection within %s; cancel failed: %w", timeout, err)
					}
					return fmt.Errorf("no selection within %s", timeout)
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
	cmd.Flags().StringVar(&tabID, "tab", "", "tab id (see clickshot tabs)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the click")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func isSelectionTag(tag string) bool {
	switch tag {
	case events.TagElementSelected, events.TagNextElementSelected, events.TagPrevElementSelected:
		return true
	}
	return false
}
