package vault

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	observationsHeader = "# Observations\n"
	summaryHeading     = "Summary"
)

// Observation is one timestamped entry in observations.md.
type Observation struct {
	Stamp string
	Text  string
}

// ObservationLog is observations.md parsed into its distilled summary and
// the raw entries logged since.
type ObservationLog struct {
	Summary string
	Entries []Observation
	Raw     string
}

func parseObservations(raw string) *ObservationLog {
	log := &ObservationLog{Raw: raw}

	var heading string
	var body []string
	inSection := false
	flush := func() {
		if !inSection {
			return
		}
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if heading == summaryHeading {
			log.Summary = text
		} else if text != "" {
			log.Entries = append(log.Entries, Observation{Stamp: heading, Text: text})
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		if h, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			heading, body, inSection = strings.TrimSpace(h), nil, true
			continue
		}
		if inSection {
			body = append(body, line)
		}
	}
	flush()
	return log
}

// Render writes the log back in observations.md form.
func (l *ObservationLog) Render() string {
	var b strings.Builder
	b.WriteString(observationsHeader)
	if l.Summary != "" {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", summaryHeading, l.Summary)
	}
	for _, e := range l.Entries {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", e.Stamp, e.Text)
	}
	return b.String()
}

func (v *Vault) observationsPath() string {
	return filepath.Join(v.MemoryDir(), ObservationsFile)
}

func (v *Vault) Observations() (*ObservationLog, error) {
	raw, err := v.readFile(v.observationsPath())
	if err != nil {
		if isNotFound(err) {
			return &ObservationLog{}, nil
		}
		return nil, err
	}
	return parseObservations(raw), nil
}

// AppendObservation logs a timestamped entry and returns the entry count.
func (v *Vault) AppendObservation(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errorf(ErrEmpty, "content is required")
	}
	log, err := v.Observations()
	if err != nil {
		return 0, err
	}
	log.Entries = append(log.Entries, Observation{
		Stamp: v.now().Format("2006-01-02 15:04"),
		Text:  text,
	})
	if err := v.writeFile(v.observationsPath(), log.Render()); err != nil {
		return 0, fmt.Errorf("write observations: %w", err)
	}
	return len(log.Entries), nil
}

// CompactObservations archives the current file as-is, then rewrites it as
// summary plus the entries to keep.
func (v *Vault) CompactObservations(summary string, keep []Observation) error {
	current, err := v.Observations()
	if err != nil {
		return err
	}
	if strings.TrimSpace(current.Raw) != "" {
		if _, err := v.Archive("Observations before consolidation:\n\n"+current.Raw, ""); err != nil {
			return fmt.Errorf("archive observations: %w", err)
		}
	}
	next := &ObservationLog{Summary: strings.TrimSpace(summary), Entries: keep}
	if err := v.writeFile(v.observationsPath(), next.Render()); err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	return nil
}
