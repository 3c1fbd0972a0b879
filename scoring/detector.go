package scoring

import (
	"context"

	"github.com/hazyhaar/originality/connectivity"
)

const (
	detectorName = "Plagiarism Detector"
	detectorURL  = "https://api.plagiarismdetector.com/v1/check"
)

// Detector is a synchronous checker with bearer authentication. Its response
// shape varies between deployments, so both field spellings are accepted.
type Detector struct {
	client *connectivity.HTTPClient
	key    string
	url    string
}

// NewDetector builds the provider from cfg.
func NewDetector(cfg Config, client *connectivity.HTTPClient) *Detector {
	endpoint := detectorURL
	if cfg.BaseURL != "" {
		endpoint = cfg.BaseURL
	}
	return &Detector{client: client, key: cfg.APIKey, url: endpoint}
}

func (d *Detector) Name() string { return detectorName }

type detectorMatch struct {
	URL        string   `json:"url"`
	Source     string   `json:"source"`
	Similarity *float64 `json:"similarity"`
	Percentage *float64 `json:"percentage"`
	Title      string   `json:"title"`
}

type detectorResponse struct {
	PlagiarismScore *float64        `json:"plagiarismScore"`
	Score           *float64        `json:"score"`
	Matches         []detectorMatch `json:"matches"`
	Sources         []detectorMatch `json:"sources"`
}

func (d *Detector) Score(ctx context.Context, text string) (*Result, error) {
	if d.key == "" {
		return nil, &ProviderError{Provider: detectorName, Kind: KindAuth, Err: ErrMissingCredential}
	}
	var resp detectorResponse
	if err := postJSON(ctx, d.client, detectorName, d.url,
		map[string]string{"Authorization": "Bearer " + d.key},
		map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}

	score := firstNonNil(resp.PlagiarismScore, resp.Score)
	if score == nil {
		return nil, malformed(detectorName, "response has neither plagiarismScore nor score")
	}
	matches := resp.Matches
	if len(matches) == 0 {
		matches = resp.Sources
	}

	res := &Result{Score: *score, Provider: detectorName, Status: StatusScored}
	for _, m := range matches {
		src := Source{URL: m.URL, Title: m.Title}
		if src.URL == "" {
			src.URL = m.Source
		}
		if sim := firstNonNil(m.Similarity, m.Percentage); sim != nil {
			src.Similarity = *sim
		}
		res.Sources = append(res.Sources, src)
	}
	return res, nil
}

func firstNonNil(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
