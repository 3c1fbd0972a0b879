package scoring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hazyhaar/originality/connectivity"
	"github.com/hazyhaar/originality/idgen"
)

const (
	copyleaksName     = "Copyleaks"
	copyleaksLoginURL = "https://id.copyleaks.com/v3/account/login/api"
	copyleaksAPIURL   = "https://api.copyleaks.com"
)

// Copyleaks submits text for an asynchronous scan. The verdict arrives later
// through a status webhook; Score only reports that the scan is pending.
type Copyleaks struct {
	client        *connectivity.HTTPClient
	email         string
	key           string
	loginURL      string
	apiURL        string
	publicBaseURL string
	tracker       *ScanTracker
	newScanID     idgen.Generator
	logger        *slog.Logger
}

// NewCopyleaks builds the provider from cfg. A non-empty cfg.BaseURL
// replaces both the login and the API host.
func NewCopyleaks(cfg Config, client *connectivity.HTTPClient) *Copyleaks {
	cfg.defaults()
	c := &Copyleaks{
		client:        client,
		email:         cfg.Email,
		key:           cfg.APIKey,
		loginURL:      copyleaksLoginURL,
		apiURL:        copyleaksAPIURL,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		tracker:       cfg.Tracker,
		newScanID:     cfg.ScanIDs,
		logger:        cfg.Logger,
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		c.loginURL = base + "/v3/account/login/api"
		c.apiURL = base
	}
	return c
}

func (c *Copyleaks) Name() string { return copyleaksName }

type copyleaksLogin struct {
	Email string `json:"email"`
	Key   string `json:"key"`
}

type copyleaksToken struct {
	AccessToken string `json:"access_token"`
}

type copyleaksSubmit struct {
	Base64     string              `json:"base64"`
	Filename   string              `json:"filename"`
	Properties copyleaksProperties `json:"properties"`
}

type copyleaksProperties struct {
	Webhooks struct {
		Status string `json:"status"`
	} `json:"webhooks"`
}

// WebhookPath is the path, below the public base URL, where the status
// webhook for scanID is expected.
func WebhookPath(scanID string) string {
	return "/api/plagiarism/webhook/" + scanID
}

// Score logs in, submits the scan and returns a pending result.
func (c *Copyleaks) Score(ctx context.Context, text string) (*Result, error) {
	if c.key == "" {
		return nil, &ProviderError{Provider: copyleaksName, Kind: KindAuth, Err: ErrMissingCredential}
	}

	var tok copyleaksToken
	if err := postJSON(ctx, c.client, copyleaksName, c.loginURL, nil,
		copyleaksLogin{Email: c.email, Key: c.key}, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &ProviderError{Provider: copyleaksName, Kind: KindAuth, Err: errors.New("login returned no access token")}
	}

	scanID := c.newScanID()
	req := copyleaksSubmit{
		Base64:   base64.StdEncoding.EncodeToString([]byte(text)),
		Filename: "submission.txt",
	}
	req.Properties.Webhooks.Status = c.publicBaseURL + WebhookPath(scanID)

	headers := map[string]string{"Authorization": "Bearer " + tok.AccessToken}
	if err := callJSON(ctx, c.client, copyleaksName, http.MethodPut,
		c.apiURL+"/v3/scans/submit/file/"+scanID, headers, req, nil); err != nil {
		return nil, err
	}

	if c.tracker != nil {
		if err := c.tracker.Track(ctx, scanID, copyleaksName); err != nil {
			c.logger.ErrorContext(ctx, "copyleaks: track pending scan", "scan_id", scanID, "error", err)
		}
	}
	return &Result{
		Provider: copyleaksName,
		Status:   StatusPending,
		ScanID:   scanID,
	}, nil
}

type copyleaksCompletion struct {
	Status          int `json:"status"`
	ScannedDocument struct {
		ScanID     string `json:"scanId"`
		TotalWords int    `json:"totalWords"`
	} `json:"scannedDocument"`
	Results struct {
		Internet []struct {
			URL          string `json:"url"`
			Title        string `json:"title"`
			MatchedWords int    `json:"matchedWords"`
		} `json:"internet"`
		Score struct {
			AggregatedScore *float64 `json:"aggregatedScore"`
		} `json:"score"`
	} `json:"results"`
}

// ParseCompletion decodes the body of a Copyleaks "completed" status
// webhook. Source similarity is the share of the scanned words a source
// matches.
func ParseCompletion(data []byte) (scanID string, res *Result, err error) {
	var c copyleaksCompletion
	if err := json.Unmarshal(data, &c); err != nil {
		return "", nil, classify(copyleaksName, err)
	}
	if c.Results.Score.AggregatedScore == nil {
		return "", nil, malformed(copyleaksName, "webhook without results.score.aggregatedScore")
	}
	res = &Result{
		Score:     *c.Results.Score.AggregatedScore,
		Provider:  copyleaksName,
		WordCount: c.ScannedDocument.TotalWords,
	}
	for _, m := range c.Results.Internet {
		var sim float64
		if c.ScannedDocument.TotalWords > 0 {
			sim = float64(m.MatchedWords) * 100 / float64(c.ScannedDocument.TotalWords)
		}
		res.Sources = append(res.Sources, Source{URL: m.URL, Title: m.Title, Similarity: sim})
	}
	return c.ScannedDocument.ScanID, res, nil
}
