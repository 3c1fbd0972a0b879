package scoring

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hazyhaar/originality/connectivity"
)

func jsonHeaders(extra map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// callJSON sends in as JSON and decodes the response into out. Every failure
// comes back as a *ProviderError.
func callJSON(ctx context.Context, client *connectivity.HTTPClient, provider, method, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ProviderError{Provider: provider, Kind: KindMalformed, Err: err}
	}
	resp, err := client.Do(ctx, method, url, jsonHeaders(headers), body)
	if err != nil {
		return classify(provider, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return classify(provider, err)
	}
	return nil
}

func postJSON(ctx context.Context, client *connectivity.HTTPClient, provider, url string, headers map[string]string, in, out any) error {
	return callJSON(ctx, client, provider, http.MethodPost, url, headers, in, out)
}
