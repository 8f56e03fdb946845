package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Field is one row of a project's data dictionary.
type Field struct {
	FieldName      string `json:"field_name"`
	FormName       string `json:"form_name"`
	SectionHeader  string `json:"section_header"`
	FieldType      string `json:"field_type"`
	FieldLabel     string `json:"field_label"`
	Choices        string `json:"select_choices_or_calculations"`
	FieldNote      string `json:"field_note"`
	Validation     string `json:"text_validation_type_or_show_slider_number"`
	RequiredField  string `json:"required_field"`
	Identifier     string `json:"identifier"`
	BranchingLogic string `json:"branching_logic"`
}

// ProjectInfo is the subset of the project export this tool reads.
type ProjectInfo struct {
	ProjectID    flexInt `json:"project_id"`
	ProjectTitle string  `json:"project_title"`
}

// flexInt accepts both 12 and "12"; REDCap versions disagree.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*n = flexInt(v)
	return nil
}

// Project is a REDCap project addressed by its API token.
type Project struct {
	client *Client
	token  string
}

// ExportMetadata returns the data dictionary in API order.
func (p *Project) ExportMetadata(ctx context.Context) ([]Field, error) {
	body, err := p.client.post(ctx, p.token, url.Values{"content": {"metadata"}, "format": {"json"}})
	if err != nil {
		return nil, err
	}
	var fields []Field
	if err := decodeJSON("metadata", body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ExportMetadataCSV returns the data dictionary exactly as REDCap renders it
// for download.
func (p *Project) ExportMetadataCSV(ctx context.Context) ([]byte, error) {
	return p.client.post(ctx, p.token, url.Values{"content": {"metadata"}, "format": {"csv"}})
}

func (p *Project) ExportProjectInfo(ctx context.Context) (ProjectInfo, error) {
	body, err := p.client.post(ctx, p.token, url.Values{"content": {"project"}, "format": {"json"}})
	if err != nil {
		return ProjectInfo{}, err
	}
	var info ProjectInfo
	if err := decodeJSON("project", body, &info); err != nil {
		return ProjectInfo{}, err
	}
	return info, nil
}

// ExportRecords returns flat records. When fields are given, only those
// columns are exported.
func (p *Project) ExportRecords(ctx context.Context, fields ...string) ([]map[string]any, error) {
	form := url.Values{"content": {"record"}, "format": {"json"}, "type": {"flat"}}
	for i, f := range fields {
		form.Set(fmt.Sprintf("fields[%d]", i), f)
	}
	body, err := p.client.post(ctx, p.token, form)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := decodeJSON("record", body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeJSON(content string, body []byte, v any) error {
	// A 200 response carrying {"error": ...} still means failure.
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
			return &APIError{Content: content, StatusCode: 200, Message: strings.TrimSpace(payload.Error)}
		}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("redcap %s export: decode response: %w", content, err)
	}
	return nil
}
