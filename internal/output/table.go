package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// TableFormatter formats instance records as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatInstance formats a single instance as a table row.
func (f *TableFormatter) FormatInstance(rec InstanceRecord) (string, error) {
	return f.FormatInstanceList([]InstanceRecord{rec})
}

// FormatInstanceList formats a list of instances as a table.
func (f *TableFormatter) FormatInstanceList(recs []InstanceRecord) (string, error) {
	if len(recs) == 0 {
		return "No instances found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tIPV4\tRELEASE")
	}

	for _, rec := range recs {
		state := string(rec.State)
		if state == "" {
			state = "-"
		}
		ip := rec.IPv4
		if ip == "" {
			ip = "-"
		}
		release := rec.Release
		if release == "" {
			release = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Name, state, ip, release)
	}

	_ = w.Flush()
	return buf.String(), nil
}
