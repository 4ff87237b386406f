package luma

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"calsync/internal/domain"
	"calsync/internal/metrics"
)

const (
	listPeoplePath = "/v1/calendar/list-people"
	listEventsPath = "/v1/calendar/list-events"
	apiKeyHeader   = "x-luma-api-key"
)

// Config holds Luma client configuration.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
	// Requests per Window; zero disables the budget.
	Requests int
	Window   time.Duration
}

// Client reads calendars from the Luma public API. One instance is meant to
// be shared by everything syncing against the same API key so that the
// request budget is tracked in one place.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	limiter    *WindowLimiter
	logger     *slog.Logger
}

// New creates a new Luma client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		limiter:  NewWindowLimiter(cfg.Requests, cfg.Window),
		logger:   logger.With("source", domain.SourceLuma),
	}
}

// ListAllPeople pages through every person of the calendar.
func (c *Client) ListAllPeople(ctx context.Context, calendarExternalID string) ([]domain.PersonRecord, error) {
	var people []domain.PersonRecord

	err := c.paginate(ctx, listPeoplePath, calendarExternalID, func(entries []json.RawMessage) {
		for _, raw := range entries {
			if rec, ok := c.toPerson(raw); ok {
				people = append(people, rec)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}

	return people, nil
}

// ListAllEvents pages through every public event of the calendar.
func (c *Client) ListAllEvents(ctx context.Context, calendarExternalID string) ([]domain.EventRecord, error) {
	var events []domain.EventRecord

	err := c.paginate(ctx, listEventsPath, calendarExternalID, func(entries []json.RawMessage) {
		for _, raw := range entries {
			if rec, ok := c.toEvent(raw); ok {
				events = append(events, rec)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return events, nil
}

// paginate follows next_cursor until the platform reports no more pages.
// Pages are requested strictly one after another.
func (c *Client) paginate(ctx context.Context, path, calendarExternalID string, handle func([]json.RawMessage)) error {
	cursor := ""

	for page := 0; ; page++ {
		resp, err := c.fetchPage(ctx, path, calendarExternalID, cursor)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}

		handle(resp.Entries)

		c.logger.Debug("fetched page",
			"path", path,
			"calendar", calendarExternalID,
			"page", page,
			"entries", len(resp.Entries),
		)

		if !resp.HasMore {
			return nil
		}
		if resp.NextCursor == "" || resp.NextCursor == cursor {
			c.logger.Warn("has_more without a new cursor, stopping",
				"path", path,
				"calendar", calendarExternalID,
				"page", page,
			)
			return nil
		}
		cursor = resp.NextCursor
	}
}

func (c *Client) fetchPage(ctx context.Context, path, calendarExternalID, cursor string) (*pageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	query := url.Values{}
	query.Set("calendar_api_id", calendarExternalID)
	if c.pageSize > 0 {
		query.Set("pagination_limit", strconv.Itoa(c.pageSize))
	}
	if cursor != "" {
		query.Set("pagination_cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "calsync/1.0")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(path, "error").Inc()
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(path, statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &page, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Message != "" || parsed.Code != "") {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func (c *Client) toPerson(raw json.RawMessage) (domain.PersonRecord, bool) {
	var p Person
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("failed to decode person", "error", err)
		return domain.PersonRecord{}, false
	}

	if p.APIID == "" || p.Email == "" {
		c.logger.Warn("skipping person without api_id or email", "api_id", p.APIID)
		return domain.PersonRecord{}, false
	}

	return domain.PersonRecord{
		ExternalID:          p.APIID,
		Email:               p.Email,
		Name:                p.Name,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		AvatarURL:           p.AvatarURL,
		EventApprovedCount:  deref(p.EventApprovedCount),
		EventCheckedInCount: deref(p.EventCheckedInCount),
		RevenueUSDCents:     deref(p.RevenueUSDCents),
		Tags:                p.Tags,
		MembershipTierID:    p.MembershipTierID,
		MembershipStatus:    p.MembershipStatus,
	}, true
}

func (c *Client) toEvent(raw json.RawMessage) (domain.EventRecord, bool) {
	var entry eventEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("failed to decode event entry", "error", err)
		return domain.EventRecord{}, false
	}

	payload := entry.Event
	if len(payload) == 0 {
		// Some endpoints return the event object directly.
		payload = raw
	}

	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		c.logger.Warn("failed to decode event", "api_id", entry.APIID, "error", err)
		return domain.EventRecord{}, false
	}
	if e.APIID == "" {
		e.APIID = entry.APIID
	}
	if e.APIID == "" {
		c.logger.Warn("skipping event without api_id")
		return domain.EventRecord{}, false
	}

	rec := domain.EventRecord{
		ExternalID:        e.APIID,
		Name:              e.Name,
		Description:       e.Description,
		Slug:              e.Slug,
		URL:               e.URL,
		CoverURL:          e.CoverURL,
		StartAt:           c.parseTime(e.APIID, "start_at", e.StartAt),
		EndAt:             c.parseTime(e.APIID, "end_at", e.EndAt),
		Timezone:          e.Timezone,
		MeetingURL:        e.MeetingURL,
		GuestLimit:        e.GuestLimit,
		RegistrationCount: e.RegistrationCount,
		Raw:               []byte(payload),
	}

	if len(e.Hosts) > 0 {
		rec.Hosts = []byte(e.Hosts)
	}

	if e.GeoAddress != nil {
		full := e.GeoAddress.FullAddress
		if full == nil || *full == "" {
			full = e.GeoAddress.Address
		}
		rec.Address = &domain.Address{
			FullAddress: full,
			City:        e.GeoAddress.City,
			Region:      e.GeoAddress.Region,
			Country:     e.GeoAddress.Country,
		}
	}

	if e.GeoLatitude.Valid {
		rec.Latitude = &e.GeoLatitude.Value
	}
	if e.GeoLongitude.Valid {
		rec.Longitude = &e.GeoLongitude.Value
	}

	return rec, true
}

func (c *Client) parseTime(apiID, field string, value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		c.logger.Warn("failed to parse time",
			"api_id", apiID,
			"field", field,
			"value", *value,
		)
		return nil
	}
	return &t
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
