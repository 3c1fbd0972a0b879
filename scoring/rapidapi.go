package scoring

import (
	"context"
	"net/url"

	"github.com/hazyhaar/originality/connectivity"
)

const (
	rapidAPIName = "RapidAPI"
	rapidAPIURL  = "https://plagiarism-checker-and-auto-citation-generator-multi-lingual.p.rapidapi.com/plagiarism"
)

// RapidAPI is a synchronous checker hosted on RapidAPI.
type RapidAPI struct {
	client *connectivity.HTTPClient
	key    string
	url    string
	host   string
}

// NewRapidAPI builds the provider from cfg.
func NewRapidAPI(cfg Config, client *connectivity.HTTPClient) *RapidAPI {
	endpoint := rapidAPIURL
	if cfg.BaseURL != "" {
		endpoint = cfg.BaseURL
	}
	host := ""
	if u, err := url.Parse(endpoint); err == nil {
		host = u.Host
	}
	return &RapidAPI{client: client, key: cfg.APIKey, url: endpoint, host: host}
}

func (r *RapidAPI) Name() string { return rapidAPIName }

type rapidRequest struct {
	Text             string `json:"text"`
	Language         string `json:"language"`
	IncludeCitations bool   `json:"includeCitations"`
	ScrapeSources    bool   `json:"scrapeSources"`
}

type rapidResponse struct {
	PercentPlagiarism *float64 `json:"percentPlagiarism"`
	Sources           []struct {
		URL     string  `json:"url"`
		Percent float64 `json:"percent"`
		Title   string  `json:"title"`
	} `json:"sources"`
}

func (r *RapidAPI) Score(ctx context.Context, text string) (*Result, error) {
	if r.key == "" {
		return nil, &ProviderError{Provider: rapidAPIName, Kind: KindAuth, Err: ErrMissingCredential}
	}
	headers := map[string]string{
		"x-rapidapi-key":  r.key,
		"x-rapidapi-host": r.host,
	}
	var resp rapidResponse
	if err := postJSON(ctx, r.client, rapidAPIName, r.url, headers,
		rapidRequest{Text: text, Language: "en"}, &resp); err != nil {
		return nil, err
	}
	if resp.PercentPlagiarism == nil {
		return nil, malformed(rapidAPIName, "response has no percentPlagiarism")
	}

	res := &Result{Score: *resp.PercentPlagiarism, Provider: rapidAPIName, Status: StatusScored}
	for _, s := range resp.Sources {
		res.Sources = append(res.Sources, Source{URL: s.URL, Similarity: s.Percent, Title: s.Title})
	}
	return res, nil
}
