package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/creditrail/internal/clock"
	"github.com/smallbiznis/creditrail/internal/config"
	"github.com/smallbiznis/creditrail/internal/observability/metrics"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	"github.com/smallbiznis/creditrail/internal/webhook/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const eventHeader = "X-Creditrail-Event"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Repo    webhookdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    webhookdomain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics

	client    *http.Client
	userAgent string
	livemode  bool
}

func New(p Params) webhookdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		client: &http.Client{
			Timeout: p.Cfg.Webhook.Timeout,
		},
		userAgent: p.Cfg.Webhook.UserAgent,
		livemode:  p.Cfg.Livemode(),
	}
}

func (s *Service) Create(ctx context.Context, orgID snowflake.ID, req webhookdomain.CreateRequest) (*webhookdomain.Response, error) {
	if orgID == 0 {
		return nil, webhookdomain.ErrInvalidOrganization
	}

	endpoint, err := normalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	webhook := &webhookdomain.Webhook{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		URL:       endpoint,
		Secret:    newSecret(),
		Events:    normalizeEvents(req.Events),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, webhook); err != nil {
		return nil, err
	}

	resp := s.toResponse(webhook)
	resp.Secret = webhook.Secret
	return resp, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]webhookdomain.Response, error) {
	if orgID == 0 {
		return nil, webhookdomain.ErrInvalidOrganization
	}

	webhooks, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	responses := make([]webhookdomain.Response, 0, len(webhooks))
	for i := range webhooks {
		responses = append(responses, *s.toResponse(&webhooks[i]))
	}
	return responses, nil
}

func (s *Service) GetByID(ctx context.Context, orgID snowflake.ID, id string) (*webhookdomain.Response, error) {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(webhook), nil
}

func (s *Service) Update(ctx context.Context, orgID snowflake.ID, id string, req webhookdomain.UpdateRequest) (*webhookdomain.Response, error) {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		endpoint, err := normalizeURL(*req.URL)
		if err != nil {
			return nil, err
		}
		webhook.URL = endpoint
	}
	if req.Events != nil {
		webhook.Events = normalizeEvents(*req.Events)
	}
	if req.IsDisabled != nil {
		webhook.IsDisabled = *req.IsDisabled
	}
	webhook.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, webhook); err != nil {
		return nil, err
	}
	return s.toResponse(webhook), nil
}

func (s *Service) Delete(ctx context.Context, orgID snowflake.ID, id string) error {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, orgID, webhook.ID)
}

func (s *Service) RotateSecret(ctx context.Context, orgID snowflake.ID, id string) (*webhookdomain.Response, error) {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	webhook.Secret = newSecret()
	webhook.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, webhook); err != nil {
		return nil, err
	}

	resp := s.toResponse(webhook)
	resp.Secret = webhook.Secret
	return resp, nil
}

func (s *Service) ListLogs(ctx context.Context, orgID snowflake.ID, id string, limit int) ([]webhookdomain.LogResponse, error) {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	logs, err := s.repo.ListLogs(ctx, s.db, orgID, webhook.ID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]webhookdomain.LogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, toLogResponse(&logs[i]))
	}
	return responses, nil
}

func (s *Service) SendTest(ctx context.Context, orgID snowflake.ID, id string) (*webhookdomain.LogResponse, error) {
	webhook, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	envelope := s.newEnvelope("webhook.test", map[string]any{
		"webhook_id": webhook.ID.String(),
	})

	entry, err := s.deliver(ctx, webhook, envelope)
	if err != nil && entry == nil {
		return nil, err
	}

	resp := toLogResponse(entry)
	return &resp, nil
}

func (s *Service) Dispatch(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error {
	webhooks, err := s.repo.ListEnabled(ctx, s.db, orgID)
	if err != nil {
		return err
	}

	envelope := s.newEnvelope(eventType, payload)

	var errs []error
	for i := range webhooks {
		webhook := &webhooks[i]
		if !webhook.SubscribedTo(eventType) {
			continue
		}
		if _, err := s.deliver(ctx, webhook, envelope); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", webhook.ID, err))
		}
	}
	return errors.Join(errs...)
}

// deliver makes exactly one HTTP attempt and always records a log row,
// whether the attempt succeeded, failed, or never left the process. The
// returned log entry is non-nil once the attempt was made.
func (s *Service) deliver(ctx context.Context, webhook *webhookdomain.Webhook, envelope *webhookdomain.Envelope) (*webhookdomain.WebhookLog, error) {
	// Envelope data is plain maps and scalars, so this cannot fail in
	// practice. If it ever does, no attempt was made and nothing is logged.
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	entry := &webhookdomain.WebhookLog{
		ID:        s.genID.Generate(),
		OrgID:     webhook.OrgID,
		WebhookID: webhook.ID,
		EventID:   envelope.ID,
		EventType: envelope.Type,
		URL:       webhook.URL,
		Payload:   datatypes.JSON(body),
	}

	start := s.clock.Now()
	defer func() {
		entry.DurationMs = s.clock.Now().Sub(start).Milliseconds()
		entry.CreatedAt = s.clock.Now()

		logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.InsertLog(logCtx, s.db, entry); err != nil {
			s.log.Error("webhook log write failed",
				zap.Error(err),
				zap.String("webhook_id", webhook.ID.String()),
				zap.String("event_id", envelope.ID),
			)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		msg := err.Error()
		entry.ErrorMessage = &msg
		return entry, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(eventHeader, envelope.Type)
	req.Header.Set(signature.Header, signature.Sign(body, webhook.Secret, start))

	resp, err := s.client.Do(req)
	if err != nil {
		msg := err.Error()
		entry.ErrorMessage = &msg
		s.recordDelivery(ctx, envelope.Type, 0)
		return entry, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	status := resp.StatusCode
	entry.StatusCode = &status
	s.recordDelivery(ctx, envelope.Type, status)

	if status < 200 || status > 299 {
		err := fmt.Errorf("%w: endpoint returned %d", webhookdomain.ErrDeliveryFailed, status)
		msg := err.Error()
		entry.ErrorMessage = &msg
		return entry, err
	}
	return entry, nil
}

func (s *Service) newEnvelope(eventType string, payload map[string]any) *webhookdomain.Envelope {
	return &webhookdomain.Envelope{
		ID:       "wh_evt_" + ulid.Make().String(),
		Object:   "event",
		Type:     eventType,
		Created:  s.clock.Now().Unix(),
		Data:     payload,
		Livemode: s.livemode,
	}
}

func (s *Service) recordDelivery(ctx context.Context, eventType string, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordWebhookDelivery(ctx, eventType, status)
}

func (s *Service) find(ctx context.Context, orgID snowflake.ID, id string) (*webhookdomain.Webhook, error) {
	if orgID == 0 {
		return nil, webhookdomain.ErrInvalidOrganization
	}

	webhookID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, webhookdomain.ErrInvalidID
	}

	webhook, err := s.repo.FindByID(ctx, s.db, orgID, webhookID)
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, webhookdomain.ErrNotFound
	}
	return webhook, nil
}

func (s *Service) toResponse(w *webhookdomain.Webhook) *webhookdomain.Response {
	events := []string(w.Events)
	if events == nil {
		events = []string{}
	}
	return &webhookdomain.Response{
		ID:             w.ID.String(),
		OrganizationID: w.OrgID.String(),
		URL:            w.URL,
		Events:         events,
		IsDisabled:     w.IsDisabled,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func toLogResponse(l *webhookdomain.WebhookLog) webhookdomain.LogResponse {
	return webhookdomain.LogResponse{
		ID:           l.ID.String(),
		WebhookID:    l.WebhookID.String(),
		EventID:      l.EventID,
		EventType:    l.EventType,
		URL:          l.URL,
		Payload:      json.RawMessage(l.Payload),
		StatusCode:   l.StatusCode,
		ErrorMessage: l.ErrorMessage,
		DurationMs:   l.DurationMs,
		CreatedAt:    l.CreatedAt,
	}
}

func newSecret() string {
	return "whsec_" + ulid.Make().String()
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", webhookdomain.ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", webhookdomain.ErrInvalidURL
	}
	if parsed.Host == "" {
		return "", webhookdomain.ErrInvalidURL
	}
	return raw, nil
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
