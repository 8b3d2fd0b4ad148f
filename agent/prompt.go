package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/standards"
)

var depthGuidance = map[Depth]string{
	DepthQuick:         "Flag only clear, material gaps. Keep recommendations short.",
	DepthStandard:      "Check each listed requirement and report every gap with its requirement id.",
	DepthComprehensive: "Check each listed requirement in detail, including related requirements, and describe the current and required state for every gap.",
}

var riskGuidance = map[RiskTolerance]string{
	RiskLow:    "The organization accepts little risk: treat ambiguous evidence as a gap.",
	RiskMedium: "Treat ambiguous evidence as a gap only when the requirement is high or critical.",
	RiskHigh:   "The organization accepts residual risk: report only gaps with direct evidence.",
}

// promptInput is everything that shapes a prompt. Equal inputs give equal prompts.
type promptInput struct {
	doc         Document
	standardIDs []string
	standards   map[string]*standards.Standard // optional detail by id
	depth       Depth
	risk        RiskTolerance
	focus       []string
	preferences map[string]string
}

func buildPrompt(in promptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the document %q (id: %s", in.doc.Title, in.doc.ID)
	if in.doc.Type != "" {
		fmt.Fprintf(&b, ", type: %s", in.doc.Type)
	}
	b.WriteString(").\n")

	if len(in.doc.Metadata) > 0 {
		b.WriteString("\nDocument metadata:\n")
		for _, k := range sortedKeys(in.doc.Metadata) {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.doc.Metadata[k])
		}
	}

	b.WriteString("\nStandards:\n")
	for _, id := range in.standardIDs {
		s, ok := in.standards[id]
		if !ok {
			fmt.Fprintf(&b, "- %s\n", id)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (version %s)\n", s.ID, s.Name, s.Version)
		for _, r := range s.Requirements {
			fmt.Fprintf(&b, "  - %s [%s] %s\n", r.ID, r.Criticality, r.Title)
		}
	}

	fmt.Fprintf(&b, "\nAnalysis depth: %s. %s\n", in.depth, depthGuidance[in.depth])
	fmt.Fprintf(&b, "Risk tolerance: %s. %s\n", in.risk, riskGuidance[in.risk])

	if len(in.focus) > 0 {
		focus := append([]string(nil), in.focus...)
		sort.Strings(focus)
		fmt.Fprintf(&b, "Focus areas: %s\n", strings.Join(focus, ", "))
	}

	if len(in.preferences) > 0 {
		b.WriteString("\nReviewer preferences:\n")
		for _, k := range sortedKeys(in.preferences) {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.preferences[k])
		}
	}
	return b.String()
}

// serializeDocument renders doc as JSON. Map keys are sorted by the encoder.
func serializeDocument(doc Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "serializing document", errors.WithMetadata("document_id", doc.ID))
	}
	return string(data), nil
}

// cacheKey identifies a cached analysis: the document and the prompt it produced.
func cacheKey(docJSON, prompt string) string {
	h := sha256.New()
	h.Write([]byte(docJSON))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
