package adapter

import (
	"bytes"
	"io"
	"net/http"
	"path"

	logx "feedpush/pkg/logx"
)

const diagBodyLimit = 16 << 10

// diagTransport logs every non-2xx bot API response with its body, then
// hands the body back untouched so telebot can still decode the error.
// Only the method name is logged; the URL path carries the token.
type diagTransport struct {
	next http.RoundTripper
	log  logx.Logger
}

func (d *diagTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := path.Base(req.URL.Path)
	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	body, rerr := io.ReadAll(io.LimitReader(resp.Body, diagBodyLimit))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	d.log.Warn("bot api non-success response",
		logx.String("method", method),
		logx.Int("status", resp.StatusCode),
		logx.String("body", string(body)),
		logx.Err(rerr),
	)
	return resp, nil
}
