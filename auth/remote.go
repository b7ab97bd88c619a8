package auth

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

// RemoteVerifier asks an external identity service to resolve a bearer
// token. Any transport failure or non-200 response yields absent so the
// request degrades to anonymous rather than failing.
type RemoteVerifier struct {
	logger  types.Logger
	client  *fasthttp.Client
	url     string
	timeout time.Duration
}

func NewRemoteVerifier(logger types.Logger, config *types.AuthConfig) *RemoteVerifier {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &RemoteVerifier{
		logger: logger,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		url:     config.VerifyURL,
		timeout: timeout,
	}
}

func (v *RemoteVerifier) Verify(token string) (*types.Identity, bool) {
	if token == "" {
		return nil, false
	}

	body, err := utils.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, false
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := v.client.DoTimeout(req, resp, v.timeout); err != nil {
		v.logger.Warn("Identity verification request failed", zap.Error(err))
		return nil, false
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, false
	}

	var identity types.Identity
	if err := utils.Unmarshal(resp.Body(), &identity); err != nil {
		v.logger.Warn("Identity verification returned bad payload", zap.Error(err))
		return nil, false
	}

	if identity.ID == "" {
		return nil, false
	}

	return &identity, true
}
