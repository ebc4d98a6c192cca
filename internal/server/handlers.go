package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/internal/measure"
	"github.com/ironsheep/contact-angle-mcp/internal/ocr"
	"github.com/ironsheep/contact-angle-mcp/pkg/logger"
)

// errScaleBarDisabled is returned by droplet_scale_bar without a recognizer.
var errScaleBarDisabled = errors.New("scale-bar reading is disabled (set ocr_enabled)")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "droplet_measure").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// FailureData is the error data attached to aborted measurements.
type FailureData struct {
	Stage  measure.Stage `json:"stage"`
	Reason string        `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// Measurement aborts carry FailureData.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var f *measure.Failure
		if errors.As(err, &f) {
			data := FailureData{Stage: f.Stage, Reason: f.Reason}
			if f.Err != nil {
				data.Detail = f.Err.Error()
			}
			return s.errorResponse(req.ID, -32000, "Measurement failed", data)
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "droplet_measure":
		return s.handleDropletMeasure(ctx, args)
	case "droplet_edges":
		return s.handleDropletEdges(ctx, args)
	case "droplet_baseline":
		return s.handleDropletBaseline(ctx, args)
	case "droplet_scale_bar":
		return s.handleDropletScaleBar(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{ validate() error }) error {
	if err := json.Unmarshal(args, v); err != nil {
		return err
	}
	return v.validate()
}

type pathArgs struct {
	Path string `json:"path"`
}

func (a *pathArgs) validate() error {
	if a.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// loadGrid reads path as an intensity grid. Load errors are decode failures.
func (s *Server) loadGrid(path string) (*imaging.IntensityGrid, error) {
	grid, err := imaging.LoadIntensity(s.cache, path, s.mode)
	if err != nil {
		return nil, &measure.Failure{Stage: measure.StageDecode, Reason: measure.ErrDecode.Error(), Err: err}
	}
	return grid, nil
}

// === Measurement ===

type dropletMeasureArgs struct {
	Path                  string   `json:"path"`
	MetersPerPixel        *float64 `json:"meters_per_pixel,omitempty"`
	RelativeUncertainty   float64  `json:"relative_uncertainty,omitempty"`
	CalibrationSource     string   `json:"calibration_source,omitempty"`
	CalibrateFromScaleBar bool     `json:"calibrate_from_scale_bar,omitempty"`
}

func (a *dropletMeasureArgs) validate() error {
	switch {
	case a.Path == "":
		return errors.New("path is required")
	case a.MetersPerPixel != nil && *a.MetersPerPixel <= 0:
		return errors.New("meters_per_pixel must be positive")
	case a.RelativeUncertainty < 0:
		return errors.New("relative_uncertainty must not be negative")
	}
	return nil
}

func (s *Server) handleDropletMeasure(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a dropletMeasureArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var cal *measure.Calibration
	switch {
	case a.MetersPerPixel != nil:
		source := a.CalibrationSource
		if source == "" {
			source = "user"
		}
		cal = &measure.Calibration{
			MetersPerPixel:      *a.MetersPerPixel,
			RelativeUncertainty: a.RelativeUncertainty,
			Source:              source,
		}
	case a.CalibrateFromScaleBar && s.recognizer != nil:
		sb, err := s.readScaleBar(ctx, a.Path)
		if err != nil {
			s.log.Warn(ctx, "scale-bar calibration failed, measuring uncalibrated",
				logger.String("path", a.Path), logger.Error(err))
		} else {
			cal = sb.Calibration()
		}
	}

	grid, err := s.loadGrid(a.Path)
	if err != nil {
		return nil, err
	}
	return measure.Measure(ctx, measure.Input{Grid: grid, Calibration: cal}, s.measure)
}

// EdgesResult summarizes edge detection on one image.
type EdgesResult struct {
	Width     int                      `json:"width"`
	Height    int                      `json:"height"`
	Contour   measure.ContourSummary   `json:"contour"`
	EdgeImage *imaging.EdgeImageResult `json:"edge_image,omitempty"`
}

type dropletEdgesArgs struct {
	Path         string `json:"path"`
	IncludeImage bool   `json:"include_image,omitempty"`
}

func (a *dropletEdgesArgs) validate() error {
	if a.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (s *Server) handleDropletEdges(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a dropletEdgesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	grid, err := s.loadGrid(a.Path)
	if err != nil {
		return nil, err
	}
	t, err := measure.TraceContour(ctx, grid, s.measure)
	if err != nil {
		return nil, err
	}

	res := &EdgesResult{
		Width:   t.Grid.Width,
		Height:  t.Grid.Height,
		Contour: t.Contour,
	}
	if a.IncludeImage {
		res.EdgeImage, err = imaging.RenderEdges(t.Kept, t.Grid.Width, t.Grid.Height)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// BaselineResult describes the substrate line of one image.
type BaselineResult struct {
	Baseline measure.BaselineSummary `json:"baseline"`
	Contour  measure.ContourSummary  `json:"contour"`
}

func (s *Server) handleDropletBaseline(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	grid, err := s.loadGrid(a.Path)
	if err != nil {
		return nil, err
	}
	t, err := measure.TraceContour(ctx, grid, s.measure)
	if err != nil {
		return nil, err
	}
	return &BaselineResult{Baseline: t.Baseline, Contour: t.Contour}, nil
}

// === Calibration ===

func (s *Server) handleDropletScaleBar(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if s.recognizer == nil {
		return nil, errScaleBarDisabled
	}
	return s.readScaleBar(ctx, a.Path)
}

func (s *Server) readScaleBar(ctx context.Context, path string) (*ocr.ScaleBar, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return ocr.ReadScaleBar(ctx, img, s.recognizer, s.ocr)
}
