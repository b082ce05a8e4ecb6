// Package confluence is a small client for the Confluence Cloud REST API.
package confluence

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/freedom_case_2/crcollector/internal/providers"
)

type Client struct {
	BaseURL  string
	Email    string
	APIToken string
	HTTP     *http.Client
}

// New builds a client for an Atlassian cloud domain such as "acme.atlassian.net".
func New(domain, email, token string, httpClient *http.Client) *Client {
	base := strings.TrimRight(domain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Client{BaseURL: base, Email: email, APIToken: token, HTTP: httpClient}
}

type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type History struct {
	CreatedDate string `json:"createdDate"`
	CreatedBy   User   `json:"createdBy"`
}

type Version struct {
	When string `json:"when"`
	By   User   `json:"by"`
}

type Space struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Storage struct {
	Value string `json:"value"`
}

type Body struct {
	Storage Storage `json:"storage"`
}

type Links struct {
	WebUI string `json:"webui"`
	Base  string `json:"base"`
}

type Content struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Title   string  `json:"title"`
	Body    Body    `json:"body"`
	History History `json:"history"`
	Version Version `json:"version"`
	Space   *Space  `json:"space"`
	Links   Links   `json:"_links"`
}

type SearchPage struct {
	Results []Content `json:"results"`
	Start   int       `json:"start"`
	Limit   int       `json:"limit"`
	Size    int       `json:"size"`
	Links   Links     `json:"_links"`
}

// HasMore reports whether another page follows this one.
func (p SearchPage) HasMore() bool {
	return p.Size > 0 && p.Size >= p.Limit
}

func (c *Client) Search(ctx context.Context, cql, expand string, start, limit int) (SearchPage, error) {
	q := url.Values{}
	q.Set("cql", cql)
	if expand != "" {
		q.Set("expand", expand)
	}
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))
	var out SearchPage
	err := c.get(ctx, "/wiki/rest/api/content/search?"+q.Encode(), &out)
	return out, err
}

func (c *Client) ChildComments(ctx context.Context, pageID string, start, limit int) (SearchPage, error) {
	q := url.Values{}
	q.Set("expand", "body.storage,history,version")
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))
	var out SearchPage
	err := c.get(ctx, "/wiki/rest/api/content/"+url.PathEscape(pageID)+"/child/comment?"+q.Encode(), &out)
	return out, err
}

// PageURL is the browser link for a page.
func (c *Client) PageURL(pageID string) string {
	return c.BaseURL + "/wiki/pages/viewpage.action?pageId=" + url.QueryEscape(pageID)
}

// CommentURL links to a comment anchor on its page.
func (c *Client) CommentURL(pageID, commentID string) string {
	return c.PageURL(pageID) + "&focusedCommentId=" + url.QueryEscape(commentID) + "#comment-" + commentID
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.Email, c.APIToken)
	return providers.DoJSON(c.HTTP, "confluence", req, out)
}
