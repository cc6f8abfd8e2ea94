package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"schemalift/pkg/errors"
)

// WriteReport renders the scan result as a human-readable markdown summary
// next to candidates.json. The report is advisory; the review stage works
// from the structured file.
func WriteReport(workDir, schema string, objects []ExtractedObject, analysis *Analysis) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis Report: %s\n\n", schema)
	fmt.Fprintf(&b, "Objects extracted: %d\n\n", len(objects))

	high, low := 0, 0
	for _, c := range analysis.Candidates {
		if c.Confidence == ConfidenceHigh {
			high++
		} else {
			low++
		}
	}
	fmt.Fprintf(&b, "Templating candidates: %d (%d high confidence, %d need review)\n\n",
		len(analysis.Candidates), high, low)

	if len(analysis.Candidates) > 0 {
		b.WriteString("## Candidates\n\n")
		b.WriteString("| ID | Object | Literal | Replacement | Confidence | Reason |\n")
		b.WriteString("|----|--------|---------|-------------|------------|--------|\n")
		for _, c := range analysis.Candidates {
			fmt.Fprintf(&b, "| %s | %s | `%s` | `%s` | %s | %s |\n",
				c.ID, c.Object, c.Literal, c.Replacement, c.Confidence, c.Reason)
		}
		b.WriteString("\n")
	}

	if len(analysis.CrossRefs) > 0 {
		b.WriteString("## Cross-database references\n\n")
		b.WriteString("These references point outside the source database and are not templated.\n\n")
		for _, r := range analysis.CrossRefs {
			fmt.Fprintf(&b, "- `%s.%s.%s` in %s\n", r.Database, r.Schema, r.Object, r.File)
		}
		b.WriteString("\n")
	}

	if len(analysis.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range analysis.Warnings {
			fmt.Fprintf(&b, "- **%s**: %s\n", w.Kind, w.Message)
		}
		b.WriteString("\n")
	}

	if len(analysis.Candidates) == 0 && len(analysis.Warnings) == 0 {
		b.WriteString("No environment-coupled literals found. The extracted DDL is ready to commit as-is.\n")
	}

	if err := atomicWrite(filepath.Join(workDir, analysisDirName, reportName), []byte(b.String())); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write analysis report")
	}
	return nil
}
