package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"meditrack/internal/contracts"
	"meditrack/internal/domain/emergency"
	"meditrack/internal/ports"
	"meditrack/internal/postgres"
)

// CreateRequest records a durable emergency request with status pending.
func (svc *Service) CreateRequest(ctx context.Context, in ports.CreateEmergencyInput) (*emergency.Request, error) {
	req, err := emergency.NewRequest(in.UserID, in.Latitude, in.Longitude, in.Description, in.CorrelationID)
	if err != nil {
		return nil, err
	}

	err = svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return svc.emergencies.Create(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	ctx = svc.logger.WithEmergencyID(ctx, req.ID)
	svc.logger.Info(ctx, "emergency_request_created", "Emergency request recorded",
		map[string]any{"user_id": req.UserID, "correlation_id": req.CorrelationID})
	return req, nil
}

// GetRequest returns one request, visible to its owner and to admins.
func (svc *Service) GetRequest(ctx context.Context, callerID string, isAdmin bool, id string) (*emergency.Request, error) {
	req, err := svc.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && req.UserID != callerID {
		return nil, ErrForbidden
	}
	return req, nil
}

// ListRequests returns every request for admins, the caller's own otherwise.
func (svc *Service) ListRequests(ctx context.Context, callerID string, isAdmin bool) ([]*emergency.Request, error) {
	var out []*emergency.Request
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		if isAdmin {
			out, err = svc.emergencies.ListAll(txCtx)
		} else {
			out, err = svc.emergencies.ListForUser(txCtx, callerID)
		}
		return err
	})
	return out, err
}

// UpdateRequest applies a partial update. Admins may change status and
// assignment; owners may only edit the description. A status change
// publishes a notification event for the notifier service.
func (svc *Service) UpdateRequest(ctx context.Context, callerID string, isAdmin bool, id string, in ports.UpdateEmergencyInput) (*emergency.Request, error) {
	var (
		req           *emergency.Request
		statusChanged bool
		facilityName  string
	)

	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = svc.emergencies.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		if !isAdmin {
			if req.UserID != callerID {
				return ErrForbidden
			}
			if in.Status != nil || in.MedicalFacilityID != nil || in.AssignedResponder != nil {
				return ErrForbidden
			}
		}

		if in.Description != nil {
			req.Description = *in.Description
		}
		if in.Status != nil && *in.Status != req.Status {
			if err := req.Transition(*in.Status); err != nil {
				return err
			}
			statusChanged = true
		}

		var responderID, facilityID string
		if in.AssignedResponder != nil {
			responderID = *in.AssignedResponder
		}
		if in.MedicalFacilityID != nil {
			facilityID = *in.MedicalFacilityID
		}
		if responderID != "" || facilityID != "" {
			req.Assign(responderID, facilityID)
		}

		if req.MedicalFacilityID != "" {
			if fac, err := svc.facilities.GetByID(txCtx, req.MedicalFacilityID); err == nil {
				facilityName = fac.Name
			}
		}

		return svc.emergencies.Update(txCtx, req)
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ctx = svc.logger.WithEmergencyID(ctx, req.ID)
	svc.logger.Info(ctx, "emergency_request_updated", "Emergency request updated",
		map[string]any{"status": req.Status.String(), "status_changed": statusChanged})

	if statusChanged {
		svc.publishStatusChange(ctx, req, facilityName)
	}
	return req, nil
}

// DeleteRequest removes a request, allowed for its owner and for admins.
func (svc *Service) DeleteRequest(ctx context.Context, callerID string, isAdmin bool, id string) error {
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		req, err := svc.emergencies.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !isAdmin && req.UserID != callerID {
			return ErrForbidden
		}
		return svc.emergencies.Delete(txCtx, id)
	})
	if errors.Is(err, postgres.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (svc *Service) loadRequest(ctx context.Context, id string) (*emergency.Request, error) {
	var req *emergency.Request
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = svc.emergencies.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// publishStatusChange emits the notification event after the transaction
// committed. A publish failure is logged, not surfaced: the update itself
// already succeeded.
func (svc *Service) publishStatusChange(ctx context.Context, req *emergency.Request, facilityName string) {
	if svc.publisher == nil {
		return
	}

	msg := contracts.StatusChangedMessage{
		RequestID:    req.ID,
		UserID:       req.UserID,
		Status:       req.Status.String(),
		Description:  req.Description,
		FacilityName: facilityName,
		Meta: contracts.Meta{
			CorrelationID: req.CorrelationID,
			Producer:      "emergency-service",
			SentAt:        time.Now().UTC(),
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		svc.logger.Error(ctx, "status_event_encode_failed", "Failed to encode status event", err, nil)
		return
	}

	routingKey := contracts.RouteEmergencyStatusPrefix + req.Status.String()
	if err := svc.publisher.Publish(contracts.ExchangeEmergencyTopic, routingKey, body); err != nil {
		svc.logger.Error(ctx, "status_event_publish_failed", "Failed to publish status event", err,
			map[string]any{"routing_key": routingKey})
		return
	}

	svc.logger.Info(ctx, "status_event_published", "Status change event published",
		map[string]any{"routing_key": routingKey})
}
