package context

import (
	"context"
	"fmt"
	"strings"
)

// ModelClient is the minimal LLM surface the condenser needs. The worker
// pool implements it; tests use a stub.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Condenser shrinks oversized tool outputs before they enter the
// transcript. Outputs past HardCap are middle-ellipsed first so the
// condensation call itself cannot overflow the worker.
type Condenser struct {
	client    ModelClient
	Threshold int // outputs above this go to the worker (chars)
	HardCap   int // outputs above this are middle-ellipsed first
	EdgeKeep  int // chars kept from each side during the ellipse
}

const condensedMarker = "[EDGE CONDENSED]: "

func NewCondenser(client ModelClient) *Condenser {
	return &Condenser{
		client:    client,
		Threshold: 4000,
		HardCap:   30000,
		EdgeKeep:  12000,
	}
}

const condensePrompt = `Condense the following tool output. Preserve every exact value: file paths, numbers, identifiers, error messages, URLs. Drop repetition and filler. Output only the condensed text.

--- TOOL OUTPUT ---
%s`

// Condense returns the output unchanged when it is small enough,
// otherwise a worker-written summary prefixed with the condensed marker.
// Worker failure falls back to plain truncation so the loop never stalls
// on an oversized result.
func (c *Condenser) Condense(ctx context.Context, output string) string {
	if len(output) <= c.Threshold {
		return output
	}

	working := output
	if len(working) > c.HardCap {
		working = working[:c.EdgeKeep] + "\n\n... [TRUNCATED FOR LENGTH] ...\n\n" + working[len(working)-c.EdgeKeep:]
	}

	if c.client == nil {
		return c.truncate(working)
	}

	summary, err := c.client.Generate(ctx, fmt.Sprintf(condensePrompt, working))
	if err != nil || strings.TrimSpace(summary) == "" {
		return c.truncate(working)
	}
	return condensedMarker + strings.TrimSpace(summary)
}

// truncate is the no-worker fallback: both edges survive and only the
// middle is elided, so the result never exceeds the hard cap but exact
// values near either end stay intact.
func (c *Condenser) truncate(s string) string {
	if len(s) <= c.HardCap {
		return s
	}
	return s[:c.EdgeKeep] + "\n\n... [TRUNCATED FOR LENGTH] ...\n\n" + s[len(s)-c.EdgeKeep:]
}
