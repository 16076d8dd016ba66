package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// WebhookHandler handles affiliate webhook CRUD endpoints.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// WebhookBody represents webhook data in API requests.
type WebhookBody struct {
	Name     string `json:"name" minLength:"1" maxLength:"64" doc:"Unique name for this webhook"`
	URL      string `json:"url" format:"uri" minLength:"1" doc:"Endpoint notified of conversions"`
	IsActive bool   `json:"is_active" doc:"Whether this webhook receives notifications"`
}

// WebhookResponse represents a webhook in API responses.
type WebhookResponse struct {
	ID        string `json:"id" doc:"Webhook ID"`
	Name      string `json:"name" doc:"Webhook name"`
	URL       string `json:"url" doc:"Endpoint URL"`
	IsActive  bool   `json:"is_active" doc:"Whether this webhook is active"`
	Secret    string `json:"secret,omitempty" doc:"Signing secret, returned only on creation"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp"`
}

func webhookToResponse(w *models.AffiliateWebhook) WebhookResponse {
	return WebhookResponse{
		ID:        w.ID,
		Name:      w.Name,
		URL:       w.URL,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

// ListWebhooksOutput represents the list webhooks response.
type ListWebhooksOutput struct {
	Body struct {
		Webhooks []WebhookResponse `json:"webhooks" doc:"The affiliate's webhooks"`
	}
}

// ListWebhooks returns all webhooks for the authenticated affiliate.
func (h *WebhookHandler) ListWebhooks(ctx context.Context, input *struct{}) (*ListWebhooksOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	webhooks, err := h.webhookSvc.ListByAffiliate(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "list webhooks")
	}

	out := &ListWebhooksOutput{}
	out.Body.Webhooks = make([]WebhookResponse, 0, len(webhooks))
	for _, w := range webhooks {
		out.Body.Webhooks = append(out.Body.Webhooks, webhookToResponse(w))
	}
	return out, nil
}

// CreateWebhookInput represents the create webhook request.
type CreateWebhookInput struct {
	Body WebhookBody
}

// CreateWebhookOutput represents the create webhook response.
type CreateWebhookOutput struct {
	Body WebhookResponse
}

// CreateWebhook registers a new webhook. The response carries the signing
// secret exactly once; it cannot be retrieved afterwards.
func (h *WebhookHandler) CreateWebhook(ctx context.Context, input *CreateWebhookInput) (*CreateWebhookOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	webhook, secret, err := h.webhookSvc.Create(ctx, id, service.WebhookInput{
		Name:     input.Body.Name,
		URL:      input.Body.URL,
		IsActive: input.Body.IsActive,
	})
	if err != nil {
		return nil, mapServiceError(err, "create webhook")
	}

	resp := webhookToResponse(webhook)
	resp.Secret = secret
	return &CreateWebhookOutput{Body: resp}, nil
}

// UpdateWebhookInput represents the update webhook request.
type UpdateWebhookInput struct {
	ID   string `path:"id" doc:"Webhook ID"`
	Body WebhookBody
}

// UpdateWebhookOutput represents the update webhook response.
type UpdateWebhookOutput struct {
	Body WebhookResponse
}

// UpdateWebhook applies the writable fields to a webhook.
func (h *WebhookHandler) UpdateWebhook(ctx context.Context, input *UpdateWebhookInput) (*UpdateWebhookOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	webhook, err := h.webhookSvc.Update(ctx, id, input.ID, service.WebhookInput{
		Name:     input.Body.Name,
		URL:      input.Body.URL,
		IsActive: input.Body.IsActive,
	})
	if err != nil {
		return nil, mapServiceError(err, "update webhook")
	}
	return &UpdateWebhookOutput{Body: webhookToResponse(webhook)}, nil
}

// DeleteWebhookInput represents the delete webhook request.
type DeleteWebhookInput struct {
	ID string `path:"id" doc:"Webhook ID"`
}

// DeleteWebhookOutput represents the delete webhook response.
type DeleteWebhookOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// DeleteWebhook removes a webhook.
func (h *WebhookHandler) DeleteWebhook(ctx context.Context, input *DeleteWebhookInput) (*DeleteWebhookOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	if err := h.webhookSvc.Delete(ctx, id, input.ID); err != nil {
		return nil, mapServiceError(err, "delete webhook")
	}
	out := &DeleteWebhookOutput{}
	out.Body.Deleted = true
	return out, nil
}

// DeliveryResponse represents a webhook delivery in API responses.
type DeliveryResponse struct {
	ID            string  `json:"id" doc:"Delivery ID"`
	EventType     string  `json:"event_type" doc:"Conversion event type"`
	Status        string  `json:"status" doc:"Delivery status (pending, retrying, success, failed)"`
	StatusCode    *int    `json:"status_code,omitempty" doc:"HTTP status received"`
	ErrorMessage  string  `json:"error_message,omitempty" doc:"Last failure reason"`
	AttemptNumber int     `json:"attempt_number" doc:"Attempts made so far"`
	MaxAttempts   int     `json:"max_attempts" doc:"Attempt limit"`
	NextRetryAt   *string `json:"next_retry_at,omitempty" doc:"Next retry time when retrying"`
	CreatedAt     string  `json:"created_at" doc:"Enqueue timestamp"`
	DeliveredAt   *string `json:"delivered_at,omitempty" doc:"Successful delivery timestamp"`
}

// ListDeliveriesInput represents the delivery history request.
type ListDeliveriesInput struct {
	ID     string `path:"id" doc:"Webhook ID"`
	Limit  int    `query:"limit" minimum:"1" maximum:"100" default:"50" doc:"Page size"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
}

// ListDeliveriesOutput represents the delivery history response.
type ListDeliveriesOutput struct {
	Body struct {
		Deliveries []DeliveryResponse `json:"deliveries" doc:"Delivery history, newest first"`
	}
}

// ListDeliveries returns the delivery history for a webhook.
func (h *WebhookHandler) ListDeliveries(ctx context.Context, input *ListDeliveriesInput) (*ListDeliveriesOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	deliveries, err := h.webhookSvc.Deliveries(ctx, id, input.ID, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err, "list deliveries")
	}

	out := &ListDeliveriesOutput{}
	out.Body.Deliveries = make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		resp := DeliveryResponse{
			ID:            d.ID,
			EventType:     string(d.EventType),
			Status:        string(d.Status),
			StatusCode:    d.StatusCode,
			ErrorMessage:  d.ErrorMessage,
			AttemptNumber: d.AttemptNumber,
			MaxAttempts:   d.MaxAttempts,
			CreatedAt:     d.CreatedAt.Format(time.RFC3339),
		}
		if d.NextRetryAt != nil {
			s := d.NextRetryAt.Format(time.RFC3339)
			resp.NextRetryAt = &s
		}
		if d.DeliveredAt != nil {
			s := d.DeliveredAt.Format(time.RFC3339)
			resp.DeliveredAt = &s
		}
		out.Body.Deliveries = append(out.Body.Deliveries, resp)
	}
	return out, nil
}
