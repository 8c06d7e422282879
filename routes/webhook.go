package routes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/services"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
)

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			Amount            int64             `json:"amount"`
			Status            string            `json:"status"`
			PaymentMethodType string            `json:"payment_method_type"`
			Metadata          map[string]string `json:"metadata"`
			LastPaymentError  *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// PaymentWebhook receives the gateway's asynchronous events. The raw body's
// HMAC must match the signature header before anything is parsed. A 2xx
// acknowledges the delivery; a 5xx makes the gateway redeliver, which is
// safe because every reconciler handler is idempotent.
func PaymentWebhook(reconciler *services.ReconcilerService) iris.Handler {
	return func(ctx iris.Context) {
		body, err := ctx.GetBody()
		if err != nil {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "could not read request body", ctx)
			return
		}

		if !verifyWebhookSignature(body, ctx.GetHeader("Gateway-Signature")) {
			log.Printf("⚠️ WEBHOOK: Rejected delivery with bad signature from %s", ctx.RemoteAddr())
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "invalid signature", ctx)
			return
		}

		var envelope webhookEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "malformed event payload", ctx)
			return
		}

		kind := services.EventKindFromType(envelope.Type)
		if kind == services.EventUnknown {
			ctx.JSON(iris.Map{"received": true, "ignored": true})
			return
		}

		object := envelope.Data.Object
		event := services.GatewayEvent{
			Kind:              kind,
			IntentID:          object.ID,
			Amount:            object.Amount,
			PaymentMethodType: object.PaymentMethodType,
			Purpose:           object.Metadata["type"],
			RentPaymentID:     parseMetadataID(object.Metadata, "rentPaymentId"),
			MatchID:           parseMetadataID(object.Metadata, "matchId"),
		}
		if object.LastPaymentError != nil {
			event.FailureCode = object.LastPaymentError.Code
			event.FailureMessage = object.LastPaymentError.Message
		}

		if err := reconciler.HandleEvent(event); err != nil {
			if errors.Is(err, services.ErrMissingCorrelation) {
				log.Printf("⚠️ WEBHOOK: Event %s (%s) for intent %s has no correlation metadata", envelope.ID, envelope.Type, object.ID)
				utils.CreateError(iris.StatusBadRequest, "Bad Request", "event is missing correlation metadata", ctx)
				return
			}
			log.Printf("❌ WEBHOOK: Failed to apply event %s (%s): %v", envelope.ID, envelope.Type, err)
			utils.CreateInternalServerError(ctx)
			return
		}

		ctx.JSON(iris.Map{"received": true})
	}
}

func verifyWebhookSignature(payload []byte, header string) bool {
	secret := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	if secret == "" || header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimPrefix(header, "sha256=")
	return hmac.Equal([]byte(expected), []byte(provided))
}

func parseMetadataID(metadata map[string]string, key string) uint {
	value, ok := metadata[key]
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}
