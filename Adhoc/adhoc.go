package Adhoc

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"ScreenDetAgent/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const TimeOutSeconds = 5

type AliveRequest struct {
	Id        string `json:"id"`
	Host      string `json:"host"`
	Source    string `json:"source"`
	Backend   string `json:"backend"`
	Status    any    `json:"status"`
	TimeStamp int64  `json:"timestamp"`
}

type AliveResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Addr     string
	Port     int
	Interval time.Duration
}

func (reg RegServerConfig) url() string {
	return fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
}

// Reporter periodically announces this agent to a registration server.
type Reporter struct {
	Cfg     RegServerConfig
	Source  string
	Backend string
	Status  func() any

	id     string
	host   string
	client *resty.Client
}

func NewReporter(cfg RegServerConfig, source, backend string, status func() any) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = TimeOutSeconds * time.Second
	}
	host, _ := os.Hostname()
	return &Reporter{
		Cfg:     cfg,
		Source:  source,
		Backend: backend,
		Status:  status,
		id:      uuid.NewString(),
		host:    host,
		client:  resty.New().SetTimeout(TimeOutSeconds * time.Second),
	}
}

func (r *Reporter) ID() string {
	return r.id
}

// SendOnce posts one heartbeat. Panics are recovered so a bad status source
// cannot take the agent down.
func (r *Reporter) SendOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("heartbeat panic: %v", rec)
		}
	}()
	var status any
	if r.Status != nil {
		status = r.Status()
	}
	var respBody AliveResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(AliveRequest{
			Id:        r.id,
			Host:      r.host,
			Source:    r.Source,
			Backend:   r.Backend,
			Status:    status,
			TimeStamp: time.Now().Unix(),
		}).
		SetResult(&respBody).
		Post(r.Cfg.url())
	if err != nil {
		return fmt.Errorf("heartbeat request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("heartbeat rejected: %s, body: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return fmt.Errorf("heartbeat not acknowledged")
	}
	return nil
}

// SendAliveMessage sends a heartbeat right away and then once per interval
// until ctx is done.
func (r *Reporter) SendAliveMessage(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(r.Cfg.Interval)
	defer ticker.Stop()
	send := func() {
		if err := r.SendOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Warn("heartbeat failed", zap.Error(err))
		}
	}
	send()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("heartbeat stopped")
			return
		case <-ticker.C:
			send()
		}
	}
}
