package discourse

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
)

// Upload describes a stored attachment.
type Upload struct {
	ID               int    `json:"id"`
	OriginalFilename string `json:"original_filename"`
	URL              string `json:"url"`
	ShortURL         string `json:"short_url"`
	Filesize         int    `json:"filesize"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
}

// UploadFile stores a file as a composer upload. Uploads are never cached and
// go through the same dispatch path as every other call.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (*Upload, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("type", "composer"); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	upload, err := FetchAs[Upload](ctx, c, "/uploads.json", FetchOptions{
		Method:      http.MethodPost,
		RawBody:     &buf,
		ContentType: writer.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	return &upload, nil
}
