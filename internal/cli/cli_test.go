package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/testutil"
)

func TestScanOptions_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		opts    ScanOptions
		wantErr bool
		want    string
	}{
		{"normalizes target", ScanOptions{Target: "Example.com", Endpoint: "http://localhost:8080/graphql"}, false, "https://example.com/"},
		{"missing target", ScanOptions{Endpoint: "http://x/graphql"}, true, ""},
		{"bad scheme", ScanOptions{Target: "ftp://example.com", Endpoint: "http://x/graphql"}, true, ""},
		{"missing endpoint", ScanOptions{Target: "example.com"}, true, ""},
		{"negative interval", ScanOptions{Target: "example.com", Endpoint: "http://x/graphql", Interval: -1}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.opts
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && o.Target != tt.want {
				t.Errorf("Target = %q, want %q", o.Target, tt.want)
			}
		})
	}
}

func TestWriteReport_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteReport(&buf, "job-1", testutil.SampleReport("https://example.com/", 81.5), false); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"https://example.com/", "job-1", "81.5 / 100", "1 errors, 0 warnings, 0 notices", "Images", "nginx 1.25.3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteReport_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteReport(&buf, "cached:https://example.com/", testutil.SampleReport("https://example.com/", 70), true); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	var got struct {
		JobID  string              `json:"jobId"`
		Result *model.ReportResult `json:"result"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.JobID != "cached:https://example.com/" || got.Result == nil || got.Result.Score != 70 {
		t.Errorf("got = %+v", got)
	}
}

func TestWriteReport_NilResult(t *testing.T) {
	t.Parallel()
	if err := WriteReport(&bytes.Buffer{}, "j", nil, false); err == nil {
		t.Fatal("expected error for nil result")
	}
}
