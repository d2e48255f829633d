package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/bobarin/xvoice/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

// ---------------------------------------------------------------------------
// X (Twitter) API v2 profile lookup
// Fetches the public profile and recent original posts for a username.
// ---------------------------------------------------------------------------

const (
	xUserFields   = "description,location,profile_image_url,verified,public_metrics"
	xMinPosts     = 5
	xMaxPosts     = 100
	xDefaultPosts = 20
)

var (
	tcoLinkPattern    = regexp.MustCompile(`https?://t\.co/\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ProfileFetcher loads an X profile by handle.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, handle string) (*models.Profile, error)
}

// XProfileService talks to the X API with an app bearer token.
type XProfileService struct {
	bearerToken string
	baseURL     string
	maxPosts    int
	client      *http.Client
	policy      *bluemonday.Policy
}

var _ ProfileFetcher = (*XProfileService)(nil)

// NewXProfileService creates a profile client. maxPosts is clamped to the
// range the timeline endpoint accepts.
func NewXProfileService(bearerToken, baseURL string, maxPosts int) *XProfileService {
	if baseURL == "" {
		baseURL = "https://api.twitter.com"
	}
	if maxPosts == 0 {
		maxPosts = xDefaultPosts
	}
	if maxPosts < xMinPosts {
		maxPosts = xMinPosts
	}
	if maxPosts > xMaxPosts {
		maxPosts = xMaxPosts
	}
	return &XProfileService{
		bearerToken: bearerToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxPosts:    maxPosts,
		client:      &http.Client{Timeout: 20 * time.Second},
		policy:      bluemonday.StrictPolicy(),
	}
}

type xError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type xUserResponse struct {
	Data *struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		Description     string `json:"description"`
		Location        string `json:"location"`
		ProfileImageURL string `json:"profile_image_url"`
		Verified        bool   `json:"verified"`
		PublicMetrics   struct {
			FollowersCount int `json:"followers_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []xError `json:"errors"`
}

type xTweetsResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// FetchProfile returns the profile with up to maxPosts recent posts. A missing
// or suspended account yields ErrProfileNotFound. A timeline failure is logged
// and the profile is returned without posts.
func (s *XProfileService) FetchProfile(ctx context.Context, handle string) (*models.Profile, error) {
	endpoint := fmt.Sprintf("%s/2/users/by/username/%s?user.fields=%s",
		s.baseURL, url.PathEscape(handle), url.QueryEscape(xUserFields))

	var user xUserResponse
	if err := s.get(ctx, endpoint, &user); err != nil {
		return nil, err
	}

	if user.Data == nil {
		if len(user.Errors) > 0 {
			log.Printf("[X] Lookup for @%s failed: %s (%s)", handle, user.Errors[0].Title, user.Errors[0].Detail)
		}
		return nil, ErrProfileNotFound
	}

	profile := &models.Profile{
		ID:              user.Data.ID,
		Handle:          user.Data.Username,
		Name:            s.clean(user.Data.Name),
		Description:     s.clean(user.Data.Description),
		Location:        s.clean(user.Data.Location),
		ProfileImageURL: user.Data.ProfileImageURL,
		Verified:        user.Data.Verified,
		FollowersCount:  user.Data.PublicMetrics.FollowersCount,
	}

	posts, err := s.recentPosts(ctx, profile.ID)
	if err != nil {
		log.Printf("[X] Could not load posts for @%s, continuing with bio only: %v", handle, err)
	} else {
		profile.RecentPosts = posts
	}

	log.Printf("[X] Loaded @%s (followers=%d, posts=%d)", profile.Handle, profile.FollowersCount, len(profile.RecentPosts))

	return profile, nil
}

func (s *XProfileService) recentPosts(ctx context.Context, userID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?max_results=%d&exclude=retweets,replies",
		s.baseURL, url.PathEscape(userID), s.maxPosts)

	var tweets xTweetsResponse
	if err := s.get(ctx, endpoint, &tweets); err != nil {
		return nil, err
	}

	posts := make([]string, 0, len(tweets.Data))
	for _, t := range tweets.Data {
		if text := s.clean(tcoLinkPattern.ReplaceAllString(t.Text, "")); text != "" {
			posts = append(posts, text)
		}
	}
	return posts, nil
}

func (s *XProfileService) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create X request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.bearerToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("X request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrProfileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Provider: "X", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode X response: %w", err)
	}
	return nil
}

// clean strips markup and collapses whitespace. The X API returns
// HTML-escaped text.
func (s *XProfileService) clean(text string) string {
	text = html.UnescapeString(s.policy.Sanitize(html.UnescapeString(text)))
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
