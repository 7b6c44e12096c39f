package main

import (
	"context"
	"flag"
	"log"
	"time"

	"storefront_app/internal/config"
	"storefront_app/internal/services"
)

// test_waha sends one message through the configured WAHA instance, to check an owner's number
// before enabling WhatsApp order notifications
func main() {
	phone := flag.String("phone", "", "Phone number (e.g. 9876543210 or 919876543210)")
	msg := flag.String("msg", "Test message from your store", "Message body")
	flag.Parse()

	if *phone == "" {
		log.Fatal("Please provide a phone number using -phone flag")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	service := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey)
	chatID := services.NormalizeChatID(*phone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("Sending message to %s: %s", chatID, *msg)
	if err := service.SendMessage(ctx, chatID, *msg); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}

	log.Println("Message sent successfully!")
}
