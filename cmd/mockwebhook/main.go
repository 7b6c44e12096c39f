package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"storefront_app/internal/config"
	"storefront_app/internal/services"
)

// mockwebhook signs a gateway style event with the platform secret and posts it to a running server
func main() {
	event := flag.String("event", services.EventPaymentCaptured, "Event type (payment.captured, payment.failed, refund.processed)")
	orderID := flag.String("order_id", "", "Gateway order id (payment events)")
	paymentID := flag.String("payment_id", "", "Gateway payment id (mandatory)")
	amount := flag.Int64("amount", 0, "Amount in minor units (mandatory)")
	currency := flag.String("currency", "INR", "Currency code")
	eventID := flag.String("event_id", "", "Event id header, a fresh one is generated when empty")
	target := flag.String("url", "", "Webhook URL (default: APP_URL/api/webhooks/razorpay)")
	flag.Parse()

	if *paymentID == "" || *amount <= 0 {
		fmt.Println("Usage: mockwebhook -payment_id <id> -amount <minor units> [-order_id <id>] [-event <type>]")
		flag.PrintDefaults()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.WebhookSecret == "" {
		log.Fatal("RAZORPAY_WEBHOOK_SECRET is not set")
	}
	if *target == "" {
		*target = cfg.AppURL + "/api/webhooks/razorpay"
	}
	if *eventID == "" {
		*eventID = uuid.NewString()
	}

	var payload map[string]interface{}
	switch *event {
	case services.EventRefundCreated, services.EventRefundProcessed:
		payload = map[string]interface{}{
			"refund": map[string]interface{}{"entity": map[string]interface{}{
				"id":         "rfnd_" + uuid.NewString()[:8],
				"payment_id": *paymentID,
				"amount":     *amount,
				"currency":   *currency,
			}},
		}
	default:
		status := "captured"
		if *event == services.EventPaymentFailed {
			status = "failed"
		}
		payload = map[string]interface{}{
			"payment": map[string]interface{}{"entity": map[string]interface{}{
				"id":       *paymentID,
				"order_id": *orderID,
				"amount":   *amount,
				"currency": *currency,
				"status":   status,
			}},
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"entity":     "event",
		"event":      *event,
		"created_at": time.Now().Unix(),
		"payload":    payload,
	})
	if err != nil {
		log.Fatalf("Failed to encode event: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, *target, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", services.WebhookSignature(body, cfg.WebhookSecret))
	req.Header.Set("X-Razorpay-Event-Id", *eventID)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Failed to deliver webhook: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Printf("Delivered %s (event id %s): %d %s", *event, *eventID, resp.StatusCode, respBody)
}
