package learning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/arcwatch/sentinel/internal/notify"
)

// atomicWriteFile writes data to a temp file in dir(path) then renames it
// into place, so a crash mid-write never leaves a truncated artifact.
func atomicWriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// SOPPatchPropagator writes a proposed SOP edit to a durable artifact path.
// It never auto-commits the patch; an operator reviews and applies it.
type SOPPatchPropagator struct {
	Dir string
}

func (p SOPPatchPropagator) Target() string { return TargetSOPPatch }

func (p SOPPatchPropagator) Propagate(_ context.Context, f FailureEvent, class Classification) (string, error) {
	path := filepath.Join(p.Dir, f.ID+".md")
	body := fmt.Sprintf("# Proposed SOP patch\n\nRoot cause: %s\nFailure: %s\nDetected: %s\n\nPropose a rule that would have prevented this. Not auto-applied.\n",
		class.RootCause, f.FailureDesc, f.DetectedAt.Format(time.RFC3339))
	if err := atomicWriteFile(path, []byte(body)); err != nil {
		return "", fmt.Errorf("write sop patch draft: %w", err)
	}
	return path, nil
}

// HookPatternPropagator records a machine-actionable pattern that future
// detections can match against to suppress repeats.
type HookPatternPropagator struct {
	Dir string
}

func (p HookPatternPropagator) Target() string { return TargetHookPattern }

func (p HookPatternPropagator) Propagate(_ context.Context, f FailureEvent, class Classification) (string, error) {
	path := filepath.Join(p.Dir, f.ID+".json")
	body := fmt.Sprintf(`{"failure_id":%q,"root_cause":%q,"match":%q}`, f.ID, class.RootCause, f.FailureDesc)
	if err := atomicWriteFile(path, []byte(body)); err != nil {
		return "", fmt.Errorf("write hook pattern: %w", err)
	}
	return path, nil
}

var backtickDollarEscaper = strings.NewReplacer("`", "\\`", "$", "\\$")

const regressionTestTemplate = `package generatedtests

import "testing"

// Regression stub for failure {{.FailureID}} (root cause: {{.RootCause}}).
// Replace the placeholder assertion once the real repro steps are known.
func TestRegression_{{.SafeName}}(t *testing.T) {
	t.Skip({{.Description}})
}
`

type regressionTestData struct {
	FailureID   string
	RootCause   string
	SafeName    string
	Description string
}

// RegressionTestPropagator creates a Go test stub whose placeholder body
// names the failure's identifiers, with backtick/$ escaped so the failure
// description can never break out of the generated template literal.
type RegressionTestPropagator struct {
	Dir   string
	store interface {
		InsertRegressionTest(ctx context.Context, r RegressionTest) error
	}
	idFunc func() string
}

// NewRegressionTestPropagator builds a RegressionTestPropagator.
func NewRegressionTestPropagator(dir string, s interface {
	InsertRegressionTest(ctx context.Context, r RegressionTest) error
}, idFunc func() string) *RegressionTestPropagator {
	return &RegressionTestPropagator{Dir: dir, store: s, idFunc: idFunc}
}

func (p *RegressionTestPropagator) Target() string { return TargetRegressionTest }

func (p *RegressionTestPropagator) Propagate(ctx context.Context, f FailureEvent, class Classification) (string, error) {
	tmpl, err := template.New("regression").Parse(regressionTestTemplate)
	if err != nil {
		return "", fmt.Errorf("parse regression template: %w", err)
	}
	safeName := sanitizeIdentifier(f.ID)
	// Escape backtick/$ first (guards against the description itself containing
	// a raw template-literal delimiter if this stub is ever ported to a
	// template-literal-based generator), then strconv.Quote makes the result a
	// safe Go double-quoted string literal regardless of content.
	data := regressionTestData{
		FailureID: f.ID, RootCause: class.RootCause, SafeName: safeName,
		Description: strconv.Quote("placeholder: " + backtickDollarEscaper.Replace(f.FailureDesc)),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render regression stub: %w", err)
	}

	path := filepath.Join(p.Dir, "regression_"+safeName+"_test.go")
	if err := atomicWriteFile(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write regression stub: %w", err)
	}

	if err := p.store.InsertRegressionTest(ctx, RegressionTest{
		ID: p.idFunc(), FailureID: f.ID, Description: f.FailureDesc, TestFile: path,
	}); err != nil {
		return "", fmt.Errorf("record regression test: %w", err)
	}
	return path, nil
}

func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// AtomPropagator inserts a causal atom into the knowledge-atom store, if
// one is configured. With none configured it succeeds trivially: the
// feature is conditional, not an error, per SPEC_FULL 4.4.
type AtomPropagator struct {
	Store AtomStore // may be nil
}

func (p AtomPropagator) Target() string { return TargetAtom }

func (p AtomPropagator) Propagate(ctx context.Context, f FailureEvent, class Classification) (string, error) {
	if p.Store == nil {
		return "atom store not configured, skipped", nil
	}
	if err := p.Store.InsertAtom(ctx, f.ID, class.RootCause+": "+f.FailureDesc); err != nil {
		return "", fmt.Errorf("insert atom: %w", err)
	}
	return "atom recorded", nil
}

// SynapseRelayPropagator publishes an operator-visible message.
type SynapseRelayPropagator struct {
	Transport notify.Transport
}

func (p SynapseRelayPropagator) Target() string { return TargetSynapseRelay }

func (p SynapseRelayPropagator) Propagate(ctx context.Context, f FailureEvent, class Classification) (string, error) {
	err := p.Transport.Send(ctx, notify.Message{
		Severity: notify.SeverityWarning,
		Source:   "real_time_learning",
		Title:    "failure detected: " + class.RootCause,
		Detail:   f.FailureDesc,
		Fields:   map[string]any{"failure_id": f.ID, "type": f.Type},
	})
	if err != nil {
		return "", fmt.Errorf("synapse relay: %w", err)
	}
	return "relayed", nil
}
