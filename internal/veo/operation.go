package veo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// progressKeys are the metadata fields the API has used for a completion percentage.
var progressKeys = []string{"progress", "progress_percent", "progressPercent"}

func submissionFromOperation(op *genai.GenerateVideosOperation) (*pipeline.Submission, error) {
	if op == nil {
		return nil, pipeline.NewError(pipeline.KindMalformedResponse, "GenerateVideos returned no operation", nil)
	}
	if !op.Done {
		return &pipeline.Submission{Handle: pipeline.OperationHandle(op.Name)}, nil
	}

	status := statusFromOperation(op)
	if status.Err != nil {
		return nil, status.Err
	}
	if status.Result == nil {
		return nil, pipeline.NewError(pipeline.KindMalformedResponse, emptyResultReason(op.Response), nil)
	}
	return &pipeline.Submission{Done: true, Handle: pipeline.OperationHandle(op.Name), Result: status.Result}, nil
}

func statusFromOperation(op *genai.GenerateVideosOperation) *pipeline.OperationStatus {
	status := &pipeline.OperationStatus{
		Done:     op.Done,
		Progress: progressFromMetadata(op.Metadata),
	}
	if !op.Done {
		return status
	}
	if len(op.Error) > 0 {
		status.Err = operationError(op.Error)
		return status
	}
	status.Result = resultFromResponse(op.Response)
	if status.Result == nil {
		status.Err = pipeline.NewError(pipeline.KindMalformedResponse, emptyResultReason(op.Response), nil)
	}
	return status
}

// progressFromMetadata returns the first recognisable percentage in the
// operation metadata, or nil when none is present.
func progressFromMetadata(md map[string]any) *int {
	for _, key := range progressKeys {
		v, ok := md[key]
		if !ok {
			continue
		}
		if pct, ok := toPercent(v); ok {
			return &pct
		}
	}
	return nil
}

func toPercent(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Max(0, math.Min(100, f))), true
}

func resultFromResponse(resp *genai.GenerateVideosResponse) *pipeline.Result {
	if resp == nil {
		return nil
	}
	for _, gv := range resp.GeneratedVideos {
		if gv == nil || gv.Video == nil || gv.Video.URI == "" {
			continue
		}
		return &pipeline.Result{URI: gv.Video.URI, MIMEType: gv.Video.MIMEType}
	}
	return nil
}

func emptyResultReason(resp *genai.GenerateVideosResponse) string {
	if resp != nil && len(resp.RAIMediaFilteredReasons) > 0 {
		return "video was filtered: " + strings.Join(resp.RAIMediaFilteredReasons, "; ")
	}
	return "operation finished without a video"
}

// operationError converts the google.rpc.Status carried by a finished
// operation into a classified pipeline error.
func operationError(m map[string]any) error {
	code := 0
	switch c := m["code"].(type) {
	case float64:
		code = int(c)
	case int:
		code = c
	}
	message, _ := m["message"].(string)
	if message == "" {
		message = fmt.Sprintf("operation failed with code %d", code)
	}
	status, _ := m["status"].(string)
	return pipeline.NewError(kindForRPC(code, status), "generation failed", errors.New(message))
}
