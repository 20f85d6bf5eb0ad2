package studystore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wordbloom/analytics-backend/internal/config"
	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/types"
)

// Table names in the remote study data store.
const (
	TableProfiles = "user_profile"
	TableAttempts = "question_attempt"
	TableSessions = "study_session"
)

// StoreError carries the remote store's HTTP status and body text. The client
// never retries; retry policy belongs to the caller, which knows whether a
// partial result is acceptable.
type StoreError struct {
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("study store: status %d: %s", e.Status, e.Body)
}

func (e *StoreError) HTTPStatusCode() int { return e.Status }

// Filter is one row filter. Supported ops: eq, in, gte, not.is.
type Filter struct {
	Column string
	Op     string
	Value  string
}

func Eq(column, value string) Filter  { return Filter{Column: column, Op: "eq", Value: value} }
func Gte(column, value string) Filter { return Filter{Column: column, Op: "gte", Value: value} }

// NotNull filters rows where column is not null.
func NotNull(column string) Filter { return Filter{Column: column, Op: "not.is", Value: "null"} }

// In filters rows where column is one of values. Callers are responsible for
// keeping the value list under the host's URL-length limits (the aggregator's
// chunking does this); the client just encodes what it is given.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: "in", Value: "(" + strings.Join(values, ",") + ")"}
}

// Query describes one read. Range is inclusive [from, to]; the client
// requests exactly that window and never over-fetches.
type Query struct {
	Select  string
	Filters []Filter
	Order   string
	Limit   int
	Range   *[2]int
}

type Client interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	ListStudentProfiles(ctx context.Context) ([]types.UserProfile, error)
	ListClassProfiles(ctx context.Context, class string) ([]types.UserProfile, error)
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg config.StoreConfig, pageSize int) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing store base URL")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing store API key")
	}
	if pageSize < 1 {
		pageSize = 1000
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "StudyStore"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *client) Select(ctx context.Context, table string, q Query, dest any) error {
	params := url.Values{}
	if q.Select != "" {
		params.Set("select", q.Select)
	}
	for _, f := range q.Filters {
		params.Add(f.Column, f.Op+"."+f.Value)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if q.Range != nil {
		req.Header.Set("Range-Unit", "items")
		req.Header.Set("Range", fmt.Sprintf("%d-%d", q.Range[0], q.Range[1]))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("study store request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("study store read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StoreError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("study store decode rows: %w", err)
	}
	return nil
}

// ListStudentProfiles pages through every student profile. Termination is the
// short page, not a count query.
func (c *client) ListStudentProfiles(ctx context.Context) ([]types.UserProfile, error) {
	return c.listProfiles(ctx, []Filter{Eq("role", types.RoleStudent)})
}

func (c *client) ListClassProfiles(ctx context.Context, class string) ([]types.UserProfile, error) {
	return c.listProfiles(ctx, []Filter{Eq("role", types.RoleStudent), Eq("class", class)})
}

func (c *client) listProfiles(ctx context.Context, filters []Filter) ([]types.UserProfile, error) {
	var all []types.UserProfile
	from := 0
	for {
		var page []types.UserProfile
		q := Query{
			Select:  "id,name,username,avatar,class,role",
			Filters: filters,
			Order:   "id.asc",
			Range:   &[2]int{from, from + c.pageSize - 1},
		}
		if err := c.Select(ctx, TableProfiles, q, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
		from += c.pageSize
	}
}

func (c *client) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	var rows []types.UserProfile
	q := Query{
		Select:  "id,name,username,avatar,class,role",
		Filters: []Filter{Eq("id", userID)},
		Limit:   1,
	}
	if err := c.Select(ctx, TableProfiles, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
