package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the drop image (PNG, JPEG, GIF, TIFF or BMP)",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: "droplet_measure",
			Description: "Measure the contact angle of a sessile drop in a backlit side-view image. " +
				"Returns the ensemble angle with left/right angles, hysteresis, uncertainty, per-method fits " +
				"(circle, ellipse, polynomial, young_laplace), baseline, physical quantities and overlay geometry.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"meters_per_pixel": map[string]interface{}{
						"type":        "number",
						"description": "Pixel scale in meters. Without it physical values use the 10 µm/px fallback.",
					},
					"relative_uncertainty": map[string]interface{}{
						"type":        "number",
						"description": "Relative uncertainty of meters_per_pixel (e.g. 0.02)",
						"default":     0,
					},
					"calibration_source": map[string]interface{}{
						"type":        "string",
						"description": "Free-form provenance label for the calibration",
					},
					"calibrate_from_scale_bar": map[string]interface{}{
						"type":        "boolean",
						"description": "Read the scale from the image's scale bar when meters_per_pixel is not given (requires OCR)",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "droplet_edges",
			Description: "Run edge detection and droplet contour selection, returning point counts, polarity and fallback flags. Optionally returns the edge map as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the border-suppressed edge map as a base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "droplet_baseline",
			Description: "Estimate the substrate baseline (tilt, slope, intercept, RMS, inliers) with the contour summary.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "droplet_scale_bar",
			Description: "Read the scale bar near the bottom of the image with OCR and return meters per pixel, the label and the bar length.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
