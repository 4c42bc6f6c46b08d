package checkin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"StreakStake/internal/model"
)

// HTTPSource asks a remote Check-in service for daily outcomes.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewHTTPSource creates a source with optional proxy support. rps <= 0
// disables client-side throttling.
func NewHTTPSource(baseURL, apiKey, proxyURL string, rps float64) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &HTTPSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
		Limiter: limiter,
	}
}

func (s *HTTPSource) Name() string { return "http" }

// outcomeResponse is the expected JSON shape from the Check-in service.
type outcomeResponse struct {
	OwnerID string `json:"owner_id"`
	Day     string `json:"day"`
	Status  string `json:"status"`
}

func (s *HTTPSource) Outcome(ctx context.Context, ownerID, day string) (model.CheckInStatus, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("fetch check-in: %w", err)
		}
	}
	endpoint := fmt.Sprintf("%s/api/v1/checkins/%s/%s", s.BaseURL, url.PathEscape(ownerID), url.PathEscape(day))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch check-in: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.CheckInMissing, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fetch check-in: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out outcomeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode check-in: %w", err)
	}
	status := model.CheckInStatus(out.Status)
	switch status {
	case model.CheckInVictory, model.CheckInDefeat, model.CheckInMissing:
		return status, nil
	case "":
		return model.CheckInMissing, nil
	default:
		return "", fmt.Errorf("check-in %s/%s has status %q: %w", ownerID, day, out.Status, model.ErrValidation)
	}
}
