package cdpcontrol

import "fmt"

const (
	CodeValidation          = "VALIDATION"
	CodeTabNotFound         = "TAB_NOT_FOUND"
	CodeElementNotFound     = "ELEMENT_NOT_FOUND"
	CodeEvalFailure         = "EVAL_FAILURE"
	CodeEvalTimeout         = "EVAL_TIMEOUT"
	CodeCDPUnavailable      = "CDP_UNAVAILABLE"
	CodeRunInProgress       = "RUN_IN_PROGRESS"
	CodeRunNotFound         = "RUN_NOT_FOUND"
	CodeSelectionNotFound   = "SELECTION_NOT_FOUND"
	CodeDirectoryNotGranted = "DIRECTORY_NOT_GRANTED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// TabInfo describes a page target the controller can drive.
type TabInfo struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// FrameInfo describes one frame of a tab. Index is the depth-first position
// in the frame tree and is what ElementSelection.FrameID refers to.
type FrameInfo struct {
	Index    int    `json:"index"`
	FrameID  string `json:"frame_id"`
	ParentID string `json:"parent_id,omitempty"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
}

// RecorderMode selects which listeners the recorder installs.
type RecorderMode string

const (
	ModePick       RecorderMode = "pick"
	ModeRecordNext RecorderMode = "record-next"
	ModeRecordPrev RecorderMode = "record-prev"
)

// Tag returns the event tag a report from this mode carries.
func (m RecorderMode) Tag() string {
	switch m {
	case ModeRecordNext:
		return "next-element-selected"
	case ModeRecordPrev:
		return "prev-element-selected"
	}
	return "element-selected"
}

// SelectionReport is what a recorder sends back once the user clicks.
type SelectionReport struct {
	TabID    string `json:"tab_id"`
	Tag      string `json:"tag"`
	Selector string `json:"selector"`
	FrameID  int    `json:"frameId"`
}
