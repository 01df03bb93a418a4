package main

import (
	"fmt"
	"log"

	"github.com/experiencehub/booking-engine/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for the Booking Engine")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTAccessSecret)
	fmt.Println()
	fmt.Println("# sandbox only, live keys come from the provider back office")
	fmt.Printf("CMI_STORE_KEY=%s\n", secrets.CMIStoreKey)
	fmt.Printf("PAYZONE_NOTIFICATION_KEY=%s\n", secrets.PayzoneNotificationKey)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
