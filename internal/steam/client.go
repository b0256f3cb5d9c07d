package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/metrics"
	"github.com/alvmarrod/steam-weaver/internal/model"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// batchSize is the most ids the summary and ban endpoints accept per call
const batchSize = 100

const (
	pathResolveVanity = "/ISteamUser/ResolveVanityURL/v1/"
	pathFriendList    = "/ISteamUser/GetFriendList/v1/"
	pathSummaries     = "/ISteamUser/GetPlayerSummaries/v2/"
	pathBans          = "/ISteamUser/GetPlayerBans/v1/"
	pathGroupList     = "/ISteamUser/GetUserGroupList/v1/"
	pathOwnedGames    = "/IPlayerService/GetOwnedGames/v1/"
)

// communityvisibilitystate value for a public profile
const visibilityPublic = 3

// Client is the rate-limited Steam Web API fetcher.
// Requests are issued one at a time; every attempt waits for a token.
type Client struct {
	baseURL    string
	apiKey     string
	attempts   int
	retryDelay time.Duration
	limiter    *rate.Limiter
	collector  *colly.Collector
	tracker    *metrics.Tracker
}

// NewClient creates a fetcher from the runtime configuration.
// tracker may be nil.
func NewClient(cfg *config.Config, tracker *metrics.Tracker) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:     cfg.APIKey,
		attempts:   cfg.RetryAttempts,
		retryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitRPM)), 1),
		tracker:    tracker,
	}
	if c.attempts < 1 {
		c.attempts = 1
	}

	c.setupColly(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond)
	return c
}

// setupColly configures the collector used as HTTP transport
func (c *Client) setupColly(timeout time.Duration) {
	c.collector = colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxDepth(0),
	)
	c.collector.SetRequestTimeout(timeout)

	c.collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})

	// Non-2xx responses and transport failures both land here
	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("error", err)
	})
}

// outcome classifies a single attempt
type outcome int

const (
	outcomeOK outcome = iota
	outcomeTransient
	outcomePermanent
)

// do performs one paced request and reports the body and its classification
func (c *Client) do(ctx context.Context, endpoint string, params url.Values) ([]byte, outcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, outcomePermanent, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", c.apiKey)
	target := c.baseURL + endpoint + "?" + q.Encode()

	reqCtx := colly.NewContext()
	start := time.Now()
	c.tracker.IncrementRequests()
	// The collector is not context-aware; an abandoned request finishes
	// in the background within the request timeout
	done := make(chan error, 1)
	go func() {
		done <- c.collector.Request(http.MethodGet, target, nil, reqCtx, nil)
	}()

	var reqErr error
	select {
	case <-ctx.Done():
		return nil, outcomePermanent, ctx.Err()
	case reqErr = <-done:
	}
	c.tracker.RecordFetchTime(time.Since(start))

	status, _ := reqCtx.GetAny("status").(int)
	body, _ := reqCtx.GetAny("body").([]byte)

	switch {
	case reqErr == nil && status == http.StatusOK:
		return body, outcomeOK, nil
	case status == 0, status == http.StatusTooManyRequests, status >= 500:
		logrus.Debugf("Transient failure on %s (status=%d): %v", endpoint, status, reqErr)
		return nil, outcomeTransient, nil
	default:
		logrus.Debugf("Permanent failure on %s (status=%d)", endpoint, status)
		return nil, outcomePermanent, nil
	}
}

// get issues a request with retry and decodes the JSON body into out.
// It returns false when the data is unavailable; err is only set when ctx ends.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (bool, error) {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, result, err := c.do(ctx, endpoint, params)
		if err != nil {
			return false, err
		}

		switch result {
		case outcomeOK:
			if err := json.Unmarshal(body, out); err != nil {
				logrus.Debugf("Malformed JSON from %s: %v", endpoint, err)
				c.tracker.IncrementUnavailable(endpoint)
				return false, nil
			}
			return true, nil
		case outcomePermanent:
			c.tracker.IncrementUnavailable(endpoint)
			return false, nil
		}

		if attempt == c.attempts {
			break
		}

		c.tracker.IncrementRetries()
		backoff := c.retryDelay * time.Duration(1<<(attempt-1))
		logrus.Debugf("Retrying %s in %v (attempt %d/%d)", endpoint, backoff, attempt+1, c.attempts)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}

	logrus.Warnf("Giving up on %s after %d attempts", endpoint, c.attempts)
	c.tracker.IncrementUnavailable(endpoint)
	return false, nil
}

// Resolve turns a seed target into a SteamID64.
// Any failure other than cancellation is an *InputError.
func (c *Client) Resolve(ctx context.Context, input string) (model.ID, error) {
	target, err := ParseTarget(input)
	if err != nil {
		return 0, err
	}
	if target.Vanity == "" {
		return target.ID, nil
	}

	var resp struct {
		Response struct {
			Success int    `json:"success"`
			SteamID string `json:"steamid"`
			Message string `json:"message"`
		} `json:"response"`
	}
	ok, err := c.get(ctx, pathResolveVanity, url.Values{"vanityurl": {target.Vanity}}, &resp)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &InputError{Target: input, Reason: "vanity lookup unavailable"}
	}
	if resp.Response.Success != 1 {
		reason := "no match"
		if resp.Response.Message != "" {
			reason = resp.Response.Message
		}
		return 0, &InputError{Target: input, Reason: reason}
	}

	id, err := model.ParseID(resp.Response.SteamID)
	if err != nil {
		return 0, &InputError{Target: input, Reason: "resolver returned a bad id"}
	}
	logrus.Infof("Resolved vanity %q to %s", target.Vanity, id)
	return id, nil
}

// GetProfile fetches the summary of one profile. Ban status comes from GetBans.
func (c *Client) GetProfile(ctx context.Context, id model.ID) (model.ProfileRecord, bool, error) {
	records, err := c.GetProfiles(ctx, []model.ID{id})
	if err != nil {
		return model.ProfileRecord{}, false, err
	}
	p, ok := records[id]
	return p, ok, nil
}

// GetProfiles fetches player summaries in batches.
// Ids the API did not return are absent from the map.
func (c *Client) GetProfiles(ctx context.Context, ids []model.ID) (map[model.ID]model.ProfileRecord, error) {
	out := make(map[model.ID]model.ProfileRecord, len(ids))

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		var summaries struct {
			Response struct {
				Players []struct {
					SteamID    string `json:"steamid"`
					PersonName string `json:"personaname"`
					Visibility int    `json:"communityvisibilitystate"`
				} `json:"players"`
			} `json:"response"`
		}
		ok, err := c.get(ctx, pathSummaries, url.Values{"steamids": {joinIDs(ids[start:end])}}, &summaries)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for _, p := range summaries.Response.Players {
			id, err := model.ParseID(p.SteamID)
			if err != nil {
				continue
			}
			label := p.PersonName
			if label == "" {
				label = id.String()
			}
			vis := model.VisibilityPrivate
			if p.Visibility == visibilityPublic {
				vis = model.VisibilityPublic
			}
			out[id] = model.ProfileRecord{ID: id, Label: label, Visibility: vis}
		}
	}

	return out, nil
}

// GetBans fetches ban status in batches.
// Ids the API did not return are absent from the map.
func (c *Client) GetBans(ctx context.Context, ids []model.ID) (map[model.ID]model.BanStatus, error) {
	out := make(map[model.ID]model.BanStatus, len(ids))

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		var bans struct {
			Players []struct {
				SteamID         string `json:"SteamId"`
				VACBanned       bool   `json:"VACBanned"`
				NumberOfVACBans int    `json:"NumberOfVACBans"`
				NumberOfGameBan int    `json:"NumberOfGameBans"`
			} `json:"players"`
		}
		ok, err := c.get(ctx, pathBans, url.Values{"steamids": {joinIDs(ids[start:end])}}, &bans)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for _, b := range bans.Players {
			id, err := model.ParseID(b.SteamID)
			if err != nil {
				continue
			}
			out[id] = model.BanStatus{
				VACBanned: b.VACBanned,
				VACBans:   b.NumberOfVACBans,
				GameBans:  b.NumberOfGameBan,
			}
		}
	}

	return out, nil
}

// GetFriends fetches the friend list of id.
// Private profiles answer 401 and come back unavailable.
func (c *Client) GetFriends(ctx context.Context, id model.ID) ([]model.ID, bool, error) {
	var resp struct {
		FriendsList *struct {
			Friends []struct {
				SteamID string `json:"steamid"`
			} `json:"friends"`
		} `json:"friendslist"`
	}
	ok, err := c.get(ctx, pathFriendList, url.Values{
		"steamid":      {id.String()},
		"relationship": {"friend"},
	}, &resp)
	if err != nil || !ok {
		return nil, false, err
	}
	if resp.FriendsList == nil {
		c.tracker.IncrementUnavailable(pathFriendList)
		return nil, false, nil
	}

	friends := make([]model.ID, 0, len(resp.FriendsList.Friends))
	for _, f := range resp.FriendsList.Friends {
		fid, err := model.ParseID(f.SteamID)
		if err != nil {
			continue
		}
		friends = append(friends, fid)
	}
	return friends, true, nil
}

// GetGroups fetches the group memberships of id
func (c *Client) GetGroups(ctx context.Context, id model.ID) ([]model.ID, bool, error) {
	var resp struct {
		Response struct {
			Groups []struct {
				GID string `json:"gid"`
			} `json:"groups"`
		} `json:"response"`
	}
	ok, err := c.get(ctx, pathGroupList, url.Values{"steamid": {id.String()}}, &resp)
	if err != nil || !ok {
		return nil, false, err
	}

	groups := make([]model.ID, 0, len(resp.Response.Groups))
	for _, g := range resp.Response.Groups {
		gid, err := model.ParseID(g.GID)
		if err != nil {
			continue
		}
		groups = append(groups, gid)
	}
	return groups, true, nil
}

// GetOwnedGames fetches the app ids owned by id.
// A private game library answers with an empty response object.
func (c *Client) GetOwnedGames(ctx context.Context, id model.ID) ([]uint32, bool, error) {
	var resp struct {
		Response struct {
			GameCount *int `json:"game_count"`
			Games     []struct {
				AppID uint32 `json:"appid"`
			} `json:"games"`
		} `json:"response"`
	}
	ok, err := c.get(ctx, pathOwnedGames, url.Values{
		"steamid":                   {id.String()},
		"include_played_free_games": {"1"},
	}, &resp)
	if err != nil || !ok {
		return nil, false, err
	}
	if resp.Response.GameCount == nil {
		c.tracker.IncrementUnavailable(pathOwnedGames)
		return nil, false, nil
	}

	games := make([]uint32, 0, len(resp.Response.Games))
	for _, g := range resp.Response.Games {
		games = append(games, g.AppID)
	}
	return games, true, nil
}

func joinIDs(ids []model.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// String hides the credential when the client is printed
func (c *Client) String() string {
	return fmt.Sprintf("steam.Client{base=%s}", c.baseURL)
}
