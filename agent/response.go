package agent

import (
	"encoding/json"
	"strings"

	"github.com/vinayprograms/compliancekit/errors"
)

// report is the JSON shape the model is asked to produce.
type report struct {
	Score           *float64         `json:"score"`
	Confidence      *float64         `json:"confidence"`
	Gaps            []Gap            `json:"gaps"`
	Recommendations []Recommendation `json:"recommendations"`
	RiskAssessment  RiskAssessment   `json:"riskAssessment"`
}

// parseReport decodes the first JSON object in content. Text around the
// object, such as a code fence, is ignored.
func parseReport(content string) (*report, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return nil, malformed("model response contains no JSON object", content)
	}

	var r report
	dec := json.NewDecoder(strings.NewReader(content[start:]))
	if err := dec.Decode(&r); err != nil {
		return nil, malformed("model response is not a valid analysis report: "+err.Error(), content)
	}
	if r.Score == nil {
		return nil, malformed("model response has no score", content)
	}
	return &r, nil
}

func malformed(msg, content string) error {
	return errors.New(errors.ErrCodeMalformedResponse, msg, errors.WithDetail(truncate(content, 512)))
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
