package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"quillnote.app/cloud/internal/email"
	"quillnote.app/cloud/internal/license"
	"quillnote.app/cloud/internal/logger"
	"quillnote.app/cloud/models"
	"quillnote.app/cloud/storage"
)

func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	// Nothing is processed before the signature verifies.
	event, err := s.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Error("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger.Info("Stripe event verified", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("Failed to unmarshal checkout session", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := s.handleCheckoutCompleted(ctx, &session); err != nil {
			logger.Error("Failed to handle checkout completion", map[string]interface{}{
				"error":      err.Error(),
				"session_id": session.ID,
			})
			storeErrorResponse(w, err)
			return
		}

	case "customer.subscription.updated":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			logger.Error("Failed to unmarshal subscription", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := s.handleSubscriptionUpdated(ctx, &subscription); err != nil {
			logger.Error("Failed to handle subscription update", map[string]interface{}{
				"error": err.Error(),
			})
			storeErrorResponse(w, err)
			return
		}

	case "customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			logger.Error("Failed to unmarshal subscription", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := s.deactivateByCustomer(ctx, subscription.Customer); err != nil {
			logger.Error("Failed to handle subscription deletion", map[string]interface{}{
				"error": err.Error(),
			})
			storeErrorResponse(w, err)
			return
		}

	case "invoice.paid":
		// Reserved for a future status refresh; today paid invoices
		// change nothing the checkout/subscription events don't cover.
		logger.Info("Invoice paid", map[string]interface{}{
			"event_id": event.ID,
		})

	default:
		// Unknown kinds are accepted and ignored so new provider event
		// types never bounce deliveries.
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

func (s *Server) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	customerEmail := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		customerEmail = session.CustomerDetails.Email
	}

	logger.Info("Processing checkout session", map[string]interface{}{
		"session_id":     session.ID,
		"customer_email": customerEmail,
		"payment_status": session.PaymentStatus,
	})

	if customerEmail == "" {
		return errors.New("checkout session carries no customer email")
	}

	result, err := s.Reconciler.Request(ctx, customerEmail)
	if err != nil {
		return err
	}

	if session.Customer != nil && session.Customer.ID != "" {
		if err := s.Storage.SetStripeCustomerID(ctx, license.Normalize(customerEmail), session.Customer.ID); err != nil {
			// Losing the mapping only degrades later id-keyed events
			// to no-ops, so the webhook still succeeds.
			logger.Warn("Failed to store stripe customer id", map[string]interface{}{
				"error":      err.Error(),
				"session_id": session.ID,
			})
		}
	}

	if result.Created {
		if err := s.SendEmail(customerEmail, "Your QuillNote Premium license", email.LicenseBody(result.LicenseKey)); err != nil {
			// The license exists either way; delivery failure must not
			// bounce the webhook into Stripe's retry loop.
			logger.Error("Failed to send license email", map[string]interface{}{
				"error":      err.Error(),
				"session_id": session.ID,
			})
		}
	}

	logger.Info("Checkout session processed", map[string]interface{}{
		"license_key": result.LicenseKey,
		"created":     result.Created,
		"session_id":  session.ID,
	})

	return nil
}

func (s *Server) handleSubscriptionUpdated(ctx context.Context, subscription *stripe.Subscription) error {
	logger.Info("Handling subscription update", map[string]interface{}{
		"status": subscription.Status,
	})

	switch subscription.Status {
	case stripe.SubscriptionStatusActive:
		return s.setStatusByCustomer(ctx, subscription.Customer, models.StatusActive)
	case stripe.SubscriptionStatusPastDue:
		// Flagged for surfacing, but no license state change.
		logger.Warn("Subscription past due", map[string]interface{}{
			"customer_id": customerID(subscription.Customer),
		})
		return nil
	default:
		logger.Info("Ignoring subscription status", map[string]interface{}{
			"status": subscription.Status,
		})
		return nil
	}
}

func (s *Server) deactivateByCustomer(ctx context.Context, customer *stripe.Customer) error {
	return s.setStatusByCustomer(ctx, customer, models.StatusInactive)
}

func (s *Server) setStatusByCustomer(ctx context.Context, customer *stripe.Customer, status string) error {
	id := customerID(customer)
	if id == "" {
		logger.Warn("Subscription event without customer id")
		return nil
	}

	customerEmail, err := s.Resolver.EmailForCustomer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// No checkout ever linked this id to an email, so there is no
		// license to transition.
		logger.Info("No license for stripe customer, skipping", map[string]interface{}{
			"customer_id": id,
		})
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.Storage.SetLicenseStatus(ctx, customerEmail, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn("License vanished before status update", map[string]interface{}{
				"customer_id": id,
			})
			return nil
		}
		return err
	}

	logger.Info("License status updated from subscription event", map[string]interface{}{
		"customer_id": id,
		"new_status":  status,
	})

	return nil
}

func customerID(customer *stripe.Customer) string {
	if customer == nil {
		return ""
	}
	return customer.ID
}
