// Package figma wraps the Figma REST endpoints used for comment collection.
package figma

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/freedom_case_2/crcollector/internal/providers"
)

const DefaultBaseURL = "https://api.figma.com"

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(token string, httpClient *http.Client) *Client {
	return &Client{BaseURL: DefaultBaseURL, Token: token, HTTP: httpClient}
}

type User struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
	ImgURL string `json:"img_url"`
}

type ClientMeta struct {
	NodeID string `json:"node_id"`
}

type Comment struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parent_id"`
	FileKey    string     `json:"file_key"`
	Message    string     `json:"message"`
	CreatedAt  string     `json:"created_at"`
	ResolvedAt string     `json:"resolved_at"`
	User       User       `json:"user"`
	ClientMeta ClientMeta `json:"client_meta"`
}

func (c Comment) Resolved() bool { return c.ResolvedAt != "" }

type File struct {
	Name         string `json:"name"`
	LastModified string `json:"lastModified"`
	Version      string `json:"version"`
}

func (c *Client) File(ctx context.Context, key string) (File, error) {
	var out File
	err := c.get(ctx, "/v1/files/"+url.PathEscape(key)+"?depth=1", &out)
	return out, err
}

func (c *Client) Comments(ctx context.Context, key string) ([]Comment, error) {
	var out struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.get(ctx, "/v1/files/"+url.PathEscape(key)+"/comments", &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// CommentURL links to a comment inside the file browser view.
func CommentURL(fileKey, fileName string, cm Comment) string {
	return "https://www.figma.com/file/" + fileKey + "/" + url.PathEscape(fileName) +
		"?node-id=" + url.QueryEscape(cm.ClientMeta.NodeID) + "#" + cm.ID
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Figma-Token", c.Token)
	return providers.DoJSON(c.HTTP, "figma", req, out)
}
