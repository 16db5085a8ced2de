package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"stackctl/internal/logging"
)

// Upload is a file to store. The Visible fields restrict who can see it.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader

	ResponsibleFunctionID *uuid.UUID
	VisibleBUID           *uuid.UUID
	VisibleFunctionIDs    []uuid.UUID
}

func (u Upload) values() url.Values {
	q := url.Values{}
	if u.ResponsibleFunctionID != nil {
		q.Set("responsible_function_id", u.ResponsibleFunctionID.String())
	}
	if u.VisibleBUID != nil {
		q.Set("visible_bu_id", u.VisibleBUID.String())
	}
	if len(u.VisibleFunctionIDs) > 0 {
		ids := make([]string, len(u.VisibleFunctionIDs))
		for i, id := range u.VisibleFunctionIDs {
			ids[i] = id.String()
		}
		q.Set("visible_function_ids", strings.Join(ids, ","))
	}
	return q
}

// Download describes content written by DownloadFile.
type Download struct {
	Filename    string
	ContentType string
	Size        int64
}

// ListFiles lists the files visible to the user.
func (c *Client) ListFiles(ctx context.Context, opts ListOptions) (Page[File], error) {
	q := opts.values()
	return query[Page[File]](ctx, c, cacheKey(KeyFiles, q),
		request{method: http.MethodGet, path: "/files/", query: q})
}

// GetFile fetches one file's metadata.
func (c *Client) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f, err := query[File](ctx, c, KeyFiles+"/"+id.String(),
		request{method: http.MethodGet, path: "/files/" + id.String()})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UploadFile stores a file as a multipart form and invalidates file queries.
func (c *Client) UploadFile(ctx context.Context, up Upload) (*File, error) {
	if strings.TrimSpace(up.Filename) == "" {
		return nil, errors.New("upload: file name cannot be empty")
	}
	if up.Content == nil {
		return nil, fmt.Errorf("upload %s: no content", up.Filename)
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": up.Filename,
	}))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("upload %s: read content: %w", up.Filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload %s: %w", up.Filename, err)
	}

	f, err := mutate[File](ctx, c, request{
		method:      http.MethodPost,
		path:        "/files/upload",
		query:       up.values(),
		body:        &body,
		contentType: mw.FormDataContentType(),
	}, KeyFiles)
	if err != nil {
		return nil, err
	}
	logging.API("uploaded %s as %s (%d bytes)", f.OriginalFilename, f.ID, f.FileSize)
	return &f, nil
}

// DownloadFile streams a file's content to w. Content is never cached.
func (c *Client) DownloadFile(ctx context.Context, id uuid.UUID, w io.Writer) (*Download, error) {
	r := request{method: http.MethodGet, path: "/files/" + id.String() + "/download"}
	resp, err := c.send(ctx, r, "*/*")
	if err != nil {
		c.auth.Handle(err)
		return nil, err
	}
	defer resp.Body.Close()

	d := &Download{ContentType: resp.Header.Get("Content-Type")}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	d.Size, err = io.Copy(w, resp.Body)
	if err != nil {
		return d, fmt.Errorf("%s %s: read body: %w", r.method, r.path, err)
	}
	return d, nil
}

// FileDownloadURL returns a presigned URL for a file. Presigned URLs expire,
// so they are never cached.
func (c *Client) FileDownloadURL(ctx context.Context, id uuid.UUID, expiresIn time.Duration) (*FileURL, error) {
	q := url.Values{}
	if expiresIn > 0 {
		q.Set("expires_in", strconv.Itoa(int(expiresIn.Seconds())))
	}
	var out FileURL
	err := c.do(ctx, request{method: http.MethodGet, path: "/files/" + id.String() + "/url", query: q}, &out)
	if err != nil {
		c.auth.Handle(err)
		return nil, err
	}
	return &out, nil
}

// DeleteFile deletes a file and its stored object.
func (c *Client) DeleteFile(ctx context.Context, id uuid.UUID) (string, error) {
	msg, err := mutate[Message](ctx, c,
		request{method: http.MethodDelete, path: "/files/" + id.String()}, KeyFiles)
	return msg.Message, err
}
