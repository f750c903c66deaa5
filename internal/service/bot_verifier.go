package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/imgdrop/pkg/config"
)

// BotVerdict is the answer of the verification service.
type BotVerdict struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

// BotVerifier checks upload tokens against a reCAPTCHA compatible siteverify
// endpoint.
type BotVerifier struct {
	cfg     config.BotVerifyConfig
	client  *http.Client
	logger  *zap.Logger
	metrics *MetricsService
}

// NewBotVerifier constructs a verifier with sane defaults.
func NewBotVerifier(cfg config.BotVerifyConfig, logger *zap.Logger, metrics *MetricsService) *BotVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotVerifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// Verify reports whether the token belongs to a human. A disabled verifier
// admits everything.
func (v *BotVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v == nil || !v.cfg.Enabled {
		return true, nil
	}
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	verdict, err := v.siteverify(ctx, token, remoteIP)
	if err != nil {
		return false, err
	}
	ok := verdict.Success && verdict.Score >= v.cfg.MinScore
	if !ok {
		v.logger.Info("bot verification rejected", zap.Bool("success", verdict.Success), zap.Float64("score", verdict.Score))
	}
	return ok, nil
}

func (v *BotVerifier) siteverify(ctx context.Context, token, remoteIP string) (BotVerdict, error) {
	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return BotVerdict{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := v.client.Do(req)
	duration := time.Since(start)
	statusCode := http.StatusServiceUnavailable
	if resp != nil {
		statusCode = resp.StatusCode
	}
	v.metrics.ObserveHTTPRequest(http.MethodPost, "bot_siteverify", statusCode, duration)
	if err != nil {
		return BotVerdict{}, fmt.Errorf("bot verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return BotVerdict{}, fmt.Errorf("bot verification returned status %d", resp.StatusCode)
	}
	var verdict BotVerdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&verdict); err != nil {
		return BotVerdict{}, fmt.Errorf("decode bot verification: %w", err)
	}
	return verdict, nil
}
