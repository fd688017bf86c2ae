package router

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// HTTPAdapter dispatches a tool call as a single HTTP request, with the
// routing config's URL, body and header values passed through the §4.4
// parameter substitution grammar first; the method is used as written.
type HTTPAdapter struct {
	Client *http.Client
}

func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPAdapter{Client: client}
}

func (a *HTTPAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.HTTP
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing http routing config", tool.Name)
	}

	url, err := Substitute(cfg.URL, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "http url")
	}
	body, err := Substitute(cfg.Body, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "http body")
	}
	headers, err := SubstituteMap(cfg.Headers, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "http headers")
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, strings.NewReader(body))
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "build http request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := a.Client
	if !cfg.FollowRedirects {
		noRedirect := *client
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		client = &noRedirect
	}

	resp, err := client.Do(req)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "http request to %s", url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindTransportError, err, "read http response")
	}

	if resp.StatusCode >= 400 {
		if mapped, ok := cfg.ErrorMapping[strconv.Itoa(resp.StatusCode)]; ok {
			return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: mapped}, nil
		}
		return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: string(respBody)}, nil
	}
	return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(respBody), MimeType: resp.Header.Get("Content-Type")}}}, nil
}
