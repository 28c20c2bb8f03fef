package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/utils"
)

// ScanOptions are the arguments of a one-off scan driven from the command line.
type ScanOptions struct {
	// Target is the page to scan; schemeless input is treated as https.
	Target string

	// Endpoint is the server's GraphQL URL.
	Endpoint string

	UseCache bool
	Save     bool
	JSON     bool

	// Interval between polls; 0 means "use config default".
	Interval time.Duration

	// Timeout bounds the whole run; 0 waits indefinitely.
	Timeout time.Duration
}

// Validate normalizes Target in place and checks the remaining fields.
func (o *ScanOptions) Validate() error {
	if strings.TrimSpace(o.Target) == "" {
		return fmt.Errorf("missing target url")
	}
	target, err := utils.NormalizeTarget(o.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", o.Target, err)
	}
	o.Target = target
	if strings.TrimSpace(o.Endpoint) == "" {
		return fmt.Errorf("missing graphql endpoint")
	}
	if o.Interval < 0 || o.Timeout < 0 {
		return fmt.Errorf("interval and timeout must not be negative")
	}
	return nil
}

// WriteReport prints r either as indented JSON or as a short human summary.
func WriteReport(w io.Writer, jobID string, r *model.ReportResult, asJSON bool) error {
	if r == nil {
		return fmt.Errorf("job %s has no result", jobID)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			JobID  string              `json:"jobId"`
			Result *model.ReportResult `json:"result"`
		}{jobID, r})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "URL:\t%s\n", r.URL)
	fmt.Fprintf(tw, "Job:\t%s\n", jobID)
	fmt.Fprintf(tw, "Score:\t%.1f / 100\n", r.Score)
	if !r.ScannedAt.IsZero() {
		fmt.Fprintf(tw, "Scanned:\t%s\n", r.ScannedAt.UTC().Format(time.RFC3339))
	}

	var errs, warns, notices int
	for _, b := range r.IssuesByEngine {
		errs += len(b.Errors)
		warns += len(b.Warnings)
		notices += len(b.Notices)
	}
	fmt.Fprintf(tw, "Issues:\t%d errors, %d warnings, %d notices\n", errs, warns, notices)

	if len(r.ByFunctionality) > 0 {
		groups := append([]model.FunctionalityGroup(nil), r.ByFunctionality...)
		sort.SliceStable(groups, func(i, j int) bool {
			return len(groups[i].Issues) > len(groups[j].Issues)
		})
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Functionality\tIssues")
		for _, g := range groups {
			fmt.Fprintf(tw, "  %s\t%d\n", g.Name, len(g.Issues))
		}
	}

	if len(r.TechStack) > 0 {
		names := make([]string, 0, len(r.TechStack))
		for _, t := range r.TechStack {
			if t.Version != "" {
				names = append(names, t.Name+" "+t.Version)
			} else {
				names = append(names, t.Name)
			}
		}
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "Tech stack:\t%s\n", strings.Join(names, ", "))
	}
	return tw.Flush()
}
