package deploy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
)

// Config tunes the remote endpoint caller. Deploy scripts routinely run
// for minutes, the timeout has to cover the whole remote execution.
type Config struct {
	Timeout            time.Duration `help:"how long to wait for a remote deploy endpoint to finish" default:"10m"`
	InsecureSkipVerify bool          `help:"accept self-signed certificates on deploy endpoints" default:"true" devDefault:"true"`
	RollbackToken      string        `help:"shared bearer token recognized by generated rollback endpoints" default:""`
	MaxBodySize        int64         `help:"maximum response body size read from a remote endpoint" default:"4194304"`
}

// RemoteResponse is everything the classifier needs from a remote call.
type RemoteResponse struct {
	StatusCode int
	Header     http.Header
	Body       string
	Elapsed    time.Duration
}

// Client invokes the per-environment deploy and rollback endpoints.
type Client struct {
	conf *Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(conf *Config, log *zap.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: conf.InsecureSkipVerify},
	}
	return &Client{
		conf: conf,
		http: &http.Client{Timeout: conf.Timeout, Transport: transport},
		log:  log.Named("remote"),
	}
}

// Deploy calls the binding's deploy endpoint with the attempt context in
// the query string, authenticated with the project access token.
func (c *Client) Deploy(ctx context.Context, binding *model.EnvironmentBinding, project *model.Project, deployment *model.Deployment) (*RemoteResponse, error) {
	if binding.DeployUrl == "" {
		return nil, errcode.ErrConfiguration.New("deploy endpoint not configured for project %d environment %d", binding.ProjectId, binding.EnvironmentId)
	}
	target, err := url.Parse(binding.DeployUrl)
	if err != nil {
		return nil, errcode.ErrConfiguration.Wrap(err)
	}
	query := target.Query()
	query.Set("project_id", fmt.Sprintf("%d", deployment.ProjectId))
	query.Set("environment_id", fmt.Sprintf("%d", deployment.EnvironmentId))
	query.Set("deployment_id", fmt.Sprintf("%d", deployment.ID))
	query.Set("branch", deployment.Branch)
	if deployment.UserId != nil {
		query.Set("user_id", fmt.Sprintf("%d", *deployment.UserId))
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errcode.ErrTransport.Wrap(err)
	}
	if project.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+project.AccessToken)
	}
	return c.do(req)
}

type rollbackPayload struct {
	Rollback             bool   `json:"rollback"`
	RollbackTargetCommit string `json:"rollback_target_commit"`
	RollbackReason       string `json:"rollback_reason,omitempty"`
	ProjectId            int64  `json:"project_id"`
	EnvironmentId        int64  `json:"environment_id"`
	DeploymentId         int64  `json:"deployment_id"`
	UserId               int64  `json:"user_id,omitempty"`
}

// Rollback posts the rollback order to the binding's dedicated rollback
// endpoint. Rollback endpoints share one bearer token across projects,
// the scripts on the remote side only know that single secret.
func (c *Client) Rollback(ctx context.Context, binding *model.EnvironmentBinding, deployment, target *model.Deployment) (*RemoteResponse, error) {
	if binding.RollbackUrl == "" {
		return nil, errcode.ErrConfiguration.New("rollback endpoint not configured for project %d environment %d", binding.ProjectId, binding.EnvironmentId)
	}
	payload := rollbackPayload{
		Rollback:             true,
		RollbackTargetCommit: target.CommitHash,
		RollbackReason:       deployment.RollbackReason,
		ProjectId:            deployment.ProjectId,
		EnvironmentId:        deployment.EnvironmentId,
		DeploymentId:         deployment.ID,
	}
	if deployment.UserId != nil {
		payload.UserId = *deployment.UserId
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errcode.ErrTransport.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, binding.RollbackUrl, bytes.NewReader(body))
	if err != nil {
		return nil, errcode.ErrTransport.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.conf.RollbackToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.conf.RollbackToken)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*RemoteResponse, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errcode.ErrTransport.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.conf.MaxBodySize))
	if err != nil {
		return nil, errcode.ErrTransport.Wrap(err)
	}
	elapsed := time.Since(start)
	c.log.Debug("remote endpoint responded",
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return &RemoteResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
		Elapsed:    elapsed,
	}, nil
}
